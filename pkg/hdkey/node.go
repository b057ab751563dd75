package hdkey

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

var masterKey = []byte("Bitcoin seed")

// Node is a hierarchical deterministic key pair together with the chain code
// and the metadata needed to serialize it.
type Node struct {
	Depth       uint8
	Fingerprint uint32
	ChildNumber uint32
	ChainCode   []byte
	PrivateKey  []byte
	PublicKey   []byte
}

// NewMasterNode derives the master node from the given seed.
func NewMasterNode(seed []byte) (*Node, error) {
	if len(seed) < MinSeedBytes || len(seed) > MaxSeedBytes {
		return nil, ErrInvalidSeedLen
	}

	mac := hmac.New(sha512.New, masterKey)
	mac.Write(seed)
	lr := mac.Sum(nil)

	secretKey, chainCode := lr[:PrivateKeySize], lr[PrivateKeySize:]
	if !isValidScalar(secretKey) {
		return nil, ErrInvalidPrivateKey
	}

	return newNode(0, 0, 0, chainCode, secretKey)
}

// Child derives the child node at the given index. Hardened indexes are
// rejected unless allowHardened is set.
func (n *Node) Child(index uint32, allowHardened bool) (*Node, error) {
	if !n.IsValid() {
		return nil, ErrInvalidNode
	}
	if n.Depth == 255 {
		return nil, ErrMaxDepthExceeded
	}

	isHardened := index >= HardenedKeyStart
	if isHardened && !allowHardened {
		return nil, ErrHardenedDerivationForbidden
	}

	data := make([]byte, 0, PublicKeySize+4)
	if isHardened {
		data = append(data, 0x00)
		data = append(data, n.PrivateKey...)
	} else {
		data = append(data, n.PublicKey...)
	}
	var ser32 [4]byte
	binary.BigEndian.PutUint32(ser32[:], index)
	data = append(data, ser32[:]...)

	mac := hmac.New(sha512.New, n.ChainCode)
	mac.Write(data)
	ilr := mac.Sum(nil)
	il, ir := ilr[:PrivateKeySize], ilr[PrivateKeySize:]

	var ilNum btcec.ModNScalar
	if overflow := ilNum.SetByteSlice(il); overflow {
		return nil, ErrDerivedKeyOutOfRange
	}
	var keyNum btcec.ModNScalar
	keyNum.SetByteSlice(n.PrivateKey)
	ilNum.Add(&keyNum)
	if ilNum.IsZero() {
		return nil, ErrDerivedKeyOutOfRange
	}
	childKey := ilNum.Bytes()

	return newNode(n.Depth+1, fingerprint(n.PublicKey), index, ir, childKey[:])
}

// DerivePath folds Child over every index of the path, starting from the
// given node.
func DerivePath(
	master *Node, path DerivationPath, allowHardened bool,
) (*Node, error) {
	if err := path.validate(allowHardened); err != nil {
		return nil, err
	}

	node := master
	for _, index := range path {
		child, err := node.Child(index, allowHardened)
		if err != nil {
			return nil, err
		}
		node = child
	}
	return node, nil
}

// PublicKeyFromPrivate returns the compressed public key of the given
// private key.
func PublicKeyFromPrivate(privateKey []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeySize || !isValidScalar(privateKey) {
		return nil, ErrInvalidPrivateKey
	}
	_, pubkey := btcec.PrivKeyFromBytes(privateKey)
	return pubkey.SerializeCompressed(), nil
}

// IsValid returns whether the node keys and chain code are set and the
// public key matches the private one.
func (n *Node) IsValid() bool {
	if n == nil {
		return false
	}
	if len(n.ChainCode) != ChainCodeSize ||
		len(n.PrivateKey) != PrivateKeySize ||
		len(n.PublicKey) != PublicKeySize {
		return false
	}
	if isZero(n.ChainCode) || isZero(n.PrivateKey) || isZero(n.PublicKey) {
		return false
	}
	pubkey, err := PublicKeyFromPrivate(n.PrivateKey)
	if err != nil {
		return false
	}
	return bytes.Equal(pubkey, n.PublicKey)
}

// Zero wipes the key material of the node.
func (n *Node) Zero() {
	if n == nil {
		return
	}
	zero(n.PrivateKey)
	zero(n.ChainCode)
	zero(n.PublicKey)
}

func newNode(
	depth uint8, parentFP, childNumber uint32, chainCode, privateKey []byte,
) (*Node, error) {
	pubkey, err := PublicKeyFromPrivate(privateKey)
	if err != nil {
		return nil, err
	}
	return &Node{
		Depth:       depth,
		Fingerprint: parentFP,
		ChildNumber: childNumber,
		ChainCode:   append([]byte{}, chainCode...),
		PrivateKey:  append([]byte{}, privateKey...),
		PublicKey:   pubkey,
	}, nil
}

func fingerprint(pubkey []byte) uint32 {
	return binary.BigEndian.Uint32(btcutil.Hash160(pubkey)[:4])
}

func isValidScalar(b []byte) bool {
	var num btcec.ModNScalar
	overflow := num.SetByteSlice(b)
	return !overflow && !num.IsZero()
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
