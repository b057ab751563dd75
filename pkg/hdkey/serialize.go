package hdkey

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

var knownNetworks = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
}

// HexPublicKey returns the lowercase hex of the compressed public key.
func (n *Node) HexPublicKey() string {
	return hex.EncodeToString(n.PublicKey)
}

// ExtendedPublicKey returns the base58check serialization of the public
// variant of the node for the given network.
func (n *Node) ExtendedPublicKey(net *chaincfg.Params) string {
	var parentFP [4]byte
	binary.BigEndian.PutUint32(parentFP[:], n.Fingerprint)

	key := hdkeychain.NewExtendedKey(
		net.HDPublicKeyID[:], n.PublicKey, n.ChainCode, parentFP[:],
		n.Depth, n.ChildNumber, false,
	)
	return key.String()
}

// WIF returns the wallet import format of the node private key for the
// given network, always flagged as compressed.
func (n *Node) WIF(net *chaincfg.Params) (string, error) {
	prvkey, _ := btcec.PrivKeyFromBytes(n.PrivateKey)
	defer prvkey.Zero()

	wif, err := btcutil.NewWIF(prvkey, net, true)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}

// Address returns the pay-to-pubkey-hash address of the node.
func (n *Node) Address(net *chaincfg.Params) string {
	return AddressFromPublicKey(n.PublicKey, net)
}

// AddressFromPublicKey returns the pay-to-pubkey-hash address of the given
// serialized public key.
func AddressFromPublicKey(pubkey []byte, net *chaincfg.Params) string {
	// A 20-byte hash never fails.
	addr, _ := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubkey), net)
	return addr.EncodeAddress()
}

// ExtendedPublicKey is the decoded form of an extended public key string.
type ExtendedPublicKey struct {
	Version     [4]byte
	Depth       uint8
	Fingerprint uint32
	ChildNumber uint32
	ChainCode   []byte
	PublicKey   []byte
}

// DecodeExtendedPublicKey parses an extended public key string, checking
// checksum, length, version and that the embedded key is a valid point.
func DecodeExtendedPublicKey(str string) (*ExtendedPublicKey, error) {
	extKey, err := hdkeychain.NewKeyFromString(str)
	if err != nil {
		return nil, ErrInvalidExtendedKey
	}
	if extKey.IsPrivate() {
		return nil, ErrInvalidExtendedKey
	}
	pubkey, err := extKey.ECPubKey()
	if err != nil {
		return nil, ErrInvalidPublicKey
	}

	key := &ExtendedPublicKey{
		Depth:       extKey.Depth(),
		Fingerprint: extKey.ParentFingerprint(),
		ChildNumber: extKey.ChildIndex(),
		ChainCode:   extKey.ChainCode(),
		PublicKey:   pubkey.SerializeCompressed(),
	}
	copy(key.Version[:], extKey.Version())

	if key.Network() == nil {
		return nil, ErrUnknownNetwork
	}
	if key.Depth == 0 && (key.Fingerprint != 0 || key.ChildNumber != 0) {
		return nil, ErrInvalidExtendedKey
	}

	return key, nil
}

// Network returns the chain params matching the key version, nil if unknown.
func (k *ExtendedPublicKey) Network() *chaincfg.Params {
	for _, net := range knownNetworks {
		if bytes.Equal(net.HDPublicKeyID[:], k.Version[:]) {
			return net
		}
	}
	return nil
}

// Address returns the address of the embedded public key.
func (k *ExtendedPublicKey) Address() string {
	return AddressFromPublicKey(k.PublicKey, k.Network())
}
