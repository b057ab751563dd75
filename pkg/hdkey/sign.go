package hdkey

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureSize is the size of a serialized r || s signature.
const SignatureSize = 64

// Signature is a fixed size r || s ECDSA signature.
type Signature [SignatureSize]byte

// Hex returns the lowercase hex of the signature.
func (s *Signature) Hex() string {
	return hex.EncodeToString(s[:])
}

// Erase zeroes the signature.
func (s *Signature) Erase() {
	for i := range s {
		s[i] = 0
	}
}

// Sign produces a deterministic (RFC6979) signature of the given 32-byte
// hash. The hash is signed as is.
func Sign(privateKey, hash []byte) (*Signature, error) {
	if len(hash) != HashSize {
		return nil, ErrInvalidHashLen
	}
	if len(privateKey) != PrivateKeySize || !isValidScalar(privateKey) {
		return nil, ErrInvalidPrivateKey
	}

	prvkey, _ := btcec.PrivKeyFromBytes(privateKey)
	defer prvkey.Zero()

	// Compact format is recovery code || r || s.
	compact := secpecdsa.SignCompact(prvkey, hash, true)

	sig := &Signature{}
	copy(sig[:], compact[1:])
	return sig, nil
}

// Verify returns whether sig is a valid signature of hash for the given
// compressed public key.
func Verify(publicKey, hash []byte, sig *Signature) bool {
	if sig == nil || len(hash) != HashSize || len(publicKey) != PublicKeySize {
		return false
	}
	pubkey, err := btcec.ParsePubKey(publicKey)
	if err != nil {
		return false
	}

	var r, s btcec.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow || s.IsZero() {
		return false
	}

	return ecdsa.NewSignature(&r, &s).Verify(hash, pubkey)
}
