package wire

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/distfs/distfs/internal/dferr"
)

// nonceSize is secretbox's fixed nonce width; it is prepended to every
// ciphertext so DecryptPayload can recover it without an out-of-band
// channel.
const nonceSize = 24

// EncryptPayload applies the wire format's ENCRYPTED flag codec (spec
// §4.1 leaves the algorithm unspecified for FlagEncrypted; SPEC_FULL.md
// pins it to NaCl secretbox keyed by the cluster's shared secret).
func EncryptPayload(payload []byte, key *[32]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, dferr.Wrap(dferr.SystemError, err, "generate nonce")
	}
	sealed := secretbox.Seal(nonce[:], payload, &nonce, key)
	return sealed, nil
}

// DecryptPayload is the inverse of EncryptPayload.
func DecryptPayload(sealed []byte, key *[32]byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, dferr.New(dferr.InvalidParam, "encrypted payload shorter than nonce")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, dferr.New(dferr.ConsistencyViolation, "secretbox authentication failed")
	}
	return out, nil
}
