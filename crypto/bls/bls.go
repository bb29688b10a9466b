package bls

import (
	"bytes"
	"encoding/binary"
	"fmt"

	tmcrypto "github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"
)

const (
	PrivKeyName = "autonomy/PrivKeyBLS"
	PubKeyName  = "autonomy/PubKeyBLS"

	KeyType = "bls-bn256"
)

var suite = bn256.NewSuite()

func init() {
	tmjson.RegisterType(PubKey{}, PubKeyName)
	tmjson.RegisterType(PrivKey{}, PrivKeyName)
}

// PrivKey is a BLS private key (a marshaled scalar). Signatures live on G1,
// public keys on G2, as in the kyber bls scheme.
type PrivKey []byte

var _ tmcrypto.PrivKey = PrivKey{}

// GenPrivKey generates a private key from the suite's random stream.
func GenPrivKey() PrivKey {
	scalar, _ := bls.NewKeyPair(suite, suite.RandomStream())
	return marshalScalar(scalar)
}

// GenPrivKeyWithSeed derives a private key deterministically from a seed.
// Used for reproducible local networks only, never in production.
func GenPrivKeyWithSeed(seed int64) PrivKey {
	scalar := suite.G2().Scalar().Pick(seedStream(seed))
	return marshalScalar(scalar)
}

func (privKey PrivKey) Bytes() []byte {
	return []byte(privKey)
}

func (privKey PrivKey) Sign(msg []byte) ([]byte, error) {
	scalar, err := privKey.scalar()
	if err != nil {
		return nil, err
	}
	return bls.Sign(suite, scalar, msg)
}

func (privKey PrivKey) PubKey() tmcrypto.PubKey {
	scalar, err := privKey.scalar()
	if err != nil {
		panic(fmt.Sprintf("corrupted BLS private key: %v", err))
	}
	point := suite.G2().Point().Mul(scalar, nil)
	bz, err := point.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return PubKey(bz)
}

func (privKey PrivKey) Equals(other tmcrypto.PrivKey) bool {
	if otherBLS, ok := other.(PrivKey); ok {
		return bytes.Equal(privKey, otherBLS)
	}
	return false
}

func (privKey PrivKey) Type() string {
	return KeyType
}

func (privKey PrivKey) scalar() (kyber.Scalar, error) {
	scalar := suite.G2().Scalar()
	if err := scalar.UnmarshalBinary(privKey); err != nil {
		return nil, err
	}
	return scalar, nil
}

// PubKey is a BLS public key (a marshaled G2 point).
type PubKey []byte

var _ tmcrypto.PubKey = PubKey{}

// PubKeyFromBytes validates that bz is a well-formed G2 point and returns it
// as a PubKey.
func PubKeyFromBytes(bz []byte) (PubKey, error) {
	point := suite.G2().Point()
	if err := point.UnmarshalBinary(bz); err != nil {
		return nil, err
	}
	return PubKey(bz), nil
}

func (pubKey PubKey) Address() tmcrypto.Address {
	return tmcrypto.Address(tmhash.SumTruncated(pubKey))
}

func (pubKey PubKey) Bytes() []byte {
	return []byte(pubKey)
}

func (pubKey PubKey) VerifySignature(msg []byte, sig []byte) bool {
	point := suite.G2().Point()
	if err := point.UnmarshalBinary(pubKey); err != nil {
		return false
	}
	return bls.Verify(suite, point, msg, sig) == nil
}

func (pubKey PubKey) Equals(other tmcrypto.PubKey) bool {
	if otherBLS, ok := other.(PubKey); ok {
		return bytes.Equal(pubKey, otherBLS)
	}
	return false
}

func (pubKey PubKey) Type() string {
	return KeyType
}

func (pubKey PubKey) String() string {
	return fmt.Sprintf("PubKeyBLS{%X}", []byte(pubKey))
}

func marshalScalar(scalar kyber.Scalar) PrivKey {
	bz, err := scalar.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return PrivKey(bz)
}

func seedStream(seed int64) kyber.XOF {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed))
	return suite.XOF(buf[:])
}
