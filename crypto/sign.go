package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = crypto.SignatureLength

var ErrInvalidSignature = errors.New("crypto: invalid signature")

// RequestDigest binds an address-authorised request to its method name, its
// deadline and the request fields, in order.
func RequestDigest(method string, deadline int64, fields ...[]byte) [32]byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(deadline))
	parts := make([][]byte, 0, len(fields)+2)
	parts = append(parts, []byte(method), ts[:])
	parts = append(parts, fields...)
	var out [32]byte
	copy(out[:], crypto.Keccak256(parts...))
	return out
}

// Sign produces a 65-byte recoverable signature over digest.
func (k *PrivateKey) Sign(digest [32]byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	return crypto.Sign(digest[:], k.PrivateKey)
}

// RecoverAddress returns the address whose key produced sig over digest.
func RecoverAddress(digest [32]byte, sig []byte) ([20]byte, error) {
	if len(sig) != SignatureLength {
		return [20]byte{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
