package types

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	tmcrypto "github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/tmhash"

	"github.com/kongzii/open-autonomy/crypto/bls"
)

var cdc = jsoniter.ConfigCompatibleWithStandardLibrary

// Tx is the wire form of a signed payload, as submitted to the consensus
// engine's mempool and delivered back through the ABCI connection.
type Tx []byte

func (tx Tx) Hash() []byte {
	return tmhash.Sum(tx)
}

// txEnvelope is the serialized layout of a Tx.
type txEnvelope struct {
	TxType    string          `json:"tx_type"`
	Payload   json.RawMessage `json:"payload"`
	Signature []byte          `json:"signature"`
	PubKey    []byte          `json:"pub_key"`
}

// SignedTx is a decoded transaction: the typed payload plus the signature
// material needed to verify it.
type SignedTx struct {
	Payload   Payload
	payloadBz []byte
	signature []byte
	pubKey    []byte
}

// SignTx serializes the payload, signs the canonical payload bytes with the
// agent's key and returns the encoded transaction.
func SignTx(priv tmcrypto.PrivKey, p Payload) (Tx, error) {
	payloadBz, err := cdc.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize payload")
	}
	sig, err := priv.Sign(payloadBz)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign payload")
	}
	env := txEnvelope{
		TxType:    p.TxType(),
		Payload:   payloadBz,
		Signature: sig,
		PubKey:    priv.PubKey().Bytes(),
	}
	bz, err := cdc.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize transaction")
	}
	return bz, nil
}

// DecodeTx parses a transaction into its typed payload. It does not verify
// the signature; call Verify on the result before trusting the sender field.
func DecodeTx(bz []byte) (*SignedTx, error) {
	var env txEnvelope
	if err := cdc.Unmarshal(bz, &env); err != nil {
		return nil, errors.Wrap(err, "malformed transaction")
	}
	p, err := newPayload(env.TxType)
	if err != nil {
		return nil, err
	}
	if err := cdc.Unmarshal(env.Payload, p); err != nil {
		return nil, errors.Wrapf(err, "malformed %q payload", env.TxType)
	}
	return &SignedTx{
		Payload:   p,
		payloadBz: env.Payload,
		signature: env.Signature,
		pubKey:    env.PubKey,
	}, nil
}

// Verify checks the payload signature and that the key that produced it
// belongs to the declared sender.
func (stx *SignedTx) Verify() error {
	pub, err := bls.PubKeyFromBytes(stx.pubKey)
	if err != nil {
		return errors.Wrap(err, "bad public key")
	}
	if AddressFromPubKey(pub) != stx.Payload.Sender() {
		return errors.Errorf(
			"signer %v does not match payload sender %v",
			AddressFromPubKey(pub), stx.Payload.Sender(),
		)
	}
	if !pub.VerifySignature(stx.payloadBz, stx.signature) {
		return errors.New("invalid payload signature")
	}
	return nil
}
