// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package backup reads legacy symmetric backup containers. High-level
// decryptors choke on the packet quirks of old exports (bare tag 9 data,
// odd compression framing), so the container is walked packet by packet
// and only the layers that need it are decrypted and decompressed.
package backup

import (
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/toeirei/keychainpgp/internal/engine"
	"github.com/toeirei/keychainpgp/internal/logging"
)

var (
	// ErrNoEncryptedData means the input is not a backup container at all.
	ErrNoEncryptedData = errors.New("no encrypted data found in backup")
	// ErrDecryptionFailed deliberately does not say which step failed.
	ErrDecryptionFailed = errors.New("incorrect transfer code or not a valid backup")
)

// Packet tags handled by the walker.
const (
	tagSKESK        = 3  // symmetric-key encrypted session key
	tagCompressed   = 8  // compressed data
	tagSymEnc       = 9  // symmetrically encrypted data (no integrity)
	tagLiteral      = 11 // literal data
	tagSEIPD        = 18 // sym. encrypted integrity protected data
	tagMDC          = 19 // modification detection code
	tagAEADEnc      = 20 // AEAD encrypted data (draft tag, skipped)
	compressionNone = 0
	compressionZIP  = 1
	compressionZLIB = 2
	compressionBZ2  = 3
)

// Open decrypts a legacy backup container using every plausible rendering
// of the transfer code and returns the decrypted payload (a binary key
// ring). Armored input is accepted.
func Open(container []byte, code string) ([]byte, error) {
	raw, err := engine.Unarmor(container)
	if err != nil {
		return nil, fmt.Errorf("unreadable backup container: %w", err)
	}
	if !hasEncryptedData(raw) {
		return nil, ErrNoEncryptedData
	}

	for _, pass := range CandidatePasswords(code) {
		payload, err := tryDecrypt(raw, pass)
		if err == nil {
			return payload, nil
		}
		logging.Debugf("backup: candidate passphrase rejected: %v", err)
	}
	return nil, ErrDecryptionFailed
}

// hasEncryptedData scans the top-level packet stream for any encrypted
// payload before passwords are attempted.
func hasEncryptedData(raw []byte) bool {
	or := packet.NewOpaqueReader(bytes.NewReader(raw))
	for {
		op, err := or.Next()
		if err != nil {
			return false
		}
		switch op.Tag {
		case tagSKESK, tagSymEnc, tagSEIPD:
			return true
		}
	}
}

// tryDecrypt walks the container once with a single passphrase. Session
// keys from SKESK packets unlock the encrypted data packets that follow;
// everything non-encrypted passes through. A structural failure anywhere
// means the passphrase is wrong for this container.
func tryDecrypt(raw []byte, pass []byte) ([]byte, error) {
	var out bytes.Buffer
	var sessionKey []byte
	var cipher packet.CipherFunction

	or := packet.NewOpaqueReader(bytes.NewReader(raw))
	for {
		op, err := or.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed packet stream: %w", err)
		}

		switch op.Tag {
		case tagSKESK:
			p, err := op.Parse()
			if err != nil {
				return nil, fmt.Errorf("bad session key packet: %w", err)
			}
			skesk, ok := p.(*packet.SymmetricKeyEncrypted)
			if !ok {
				return nil, fmt.Errorf("unexpected packet for tag 3")
			}
			key, cf, err := skesk.Decrypt(pass)
			if err != nil {
				// Another SKESK may still match; keep walking.
				continue
			}
			sessionKey, cipher = key, cf

		case tagSymEnc, tagSEIPD:
			if sessionKey == nil {
				return nil, fmt.Errorf("encrypted data before any usable session key")
			}
			p, err := op.Parse()
			if err != nil {
				return nil, fmt.Errorf("bad encrypted data packet: %w", err)
			}
			se, ok := p.(*packet.SymmetricallyEncrypted)
			if !ok {
				return nil, fmt.Errorf("unexpected packet for tag %d", op.Tag)
			}
			rc, err := se.Decrypt(cipher, sessionKey)
			if err != nil {
				return nil, fmt.Errorf("decryption rejected: %w", err)
			}
			if err := walkPlaintext(rc, &out); err != nil {
				rc.Close()
				return nil, err
			}
			// Close verifies the MDC on integrity-protected packets.
			if err := rc.Close(); err != nil {
				return nil, fmt.Errorf("integrity check failed: %w", err)
			}

		case tagMDC, tagAEADEnc:
			// Not meaningful outside an encrypted stream.

		default:
			if err := op.Serialize(&out); err != nil {
				return nil, fmt.Errorf("failed to copy packet: %w", err)
			}
		}
	}

	if out.Len() == 0 {
		return nil, fmt.Errorf("container decrypted to nothing")
	}
	return out.Bytes(), nil
}

// walkPlaintext processes a decrypted inner packet stream: compressed
// layers are unwrapped, literal data contributes its body, and any key
// material packets pass through verbatim.
func walkPlaintext(r io.Reader, out *bytes.Buffer) error {
	or := packet.NewOpaqueReader(r)
	for {
		op, err := or.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed inner packet stream: %w", err)
		}

		switch op.Tag {
		case tagCompressed:
			inner, err := decompress(op.Contents)
			if err != nil {
				return err
			}
			if err := walkPlaintext(bytes.NewReader(inner), out); err != nil {
				return err
			}

		case tagLiteral:
			p, err := op.Parse()
			if err != nil {
				return fmt.Errorf("bad literal data packet: %w", err)
			}
			lit, ok := p.(*packet.LiteralData)
			if !ok {
				return fmt.Errorf("unexpected packet for tag 11")
			}
			if _, err := io.Copy(out, lit.Body); err != nil {
				return fmt.Errorf("failed to read literal data: %w", err)
			}

		case tagMDC, tagAEADEnc:
			// MDC trailers are consumed by the decrypting reader's Close.

		default:
			if err := op.Serialize(out); err != nil {
				return fmt.Errorf("failed to copy packet: %w", err)
			}
		}
	}
}

// decompress unwraps a compressed data packet body. The stock packet
// parser refuses some framings old exporters produced, so the algorithm
// byte is dispatched by hand.
func decompress(contents []byte) ([]byte, error) {
	if len(contents) < 1 {
		return nil, fmt.Errorf("empty compressed packet")
	}
	algo, body := contents[0], contents[1:]

	switch algo {
	case compressionNone:
		return body, nil
	case compressionZIP:
		return io.ReadAll(flate.NewReader(bytes.NewReader(body)))
	case compressionZLIB:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("bad zlib stream: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case compressionBZ2:
		return io.ReadAll(bzip2.NewReader(bytes.NewReader(body)))
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %d", algo)
	}
}
