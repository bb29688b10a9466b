// Package threshold derives per-agent keys from a single master secret using
// a random polynomial, so a local test network can be generated from one seed.
package threshold

import (
	tmcrypto "github.com/tendermint/tendermint/crypto"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/share"

	"github.com/kongzii/open-autonomy/crypto/bls"
)

var suite = bn256.NewSuite()

// Poly is a secret-sharing polynomial whose evaluations are agent keys.
type Poly struct {
	poly *share.PriPoly
}

// Master builds the polynomial of degree t-1 whose constant term is the
// master private key. The same (primary, t, seed) triple always yields the
// same polynomial.
func Master(primary bls.PrivKey, t int, seed int64) Poly {
	scalar := suite.G2().Scalar()
	if err := scalar.UnmarshalBinary(primary.Bytes()); err != nil {
		panic(err)
	}
	var buf = []byte{
		byte(seed >> 56), byte(seed >> 48), byte(seed >> 40), byte(seed >> 32),
		byte(seed >> 24), byte(seed >> 16), byte(seed >> 8), byte(seed),
	}
	return Poly{poly: share.NewPriPoly(suite.G2(), t, scalar, suite.XOF(buf))}
}

// GetValue evaluates the polynomial at idx+1 and returns the share as an
// agent private key. Index zero is shifted off the constant term so no agent
// holds the master secret itself.
func (p Poly) GetValue(idx int64) (tmcrypto.PrivKey, error) {
	sh := p.poly.Eval(int(idx) + 1)
	bz, err := sh.V.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return bls.PrivKey(bz), nil
}
