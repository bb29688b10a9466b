package privval

import (
	"fmt"
	"io/ioutil"

	"github.com/tendermint/tendermint/crypto"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"

	"github.com/kongzii/open-autonomy/crypto/bls"
	"github.com/kongzii/open-autonomy/crypto/threshold"
	"github.com/kongzii/open-autonomy/types"
)

//-------------------------------------------------------------------------------

// FilePVKey stores the immutable part of an agent identity.
type FilePVKey struct {
	Address types.Address  `json:"address"`
	PubKey  crypto.PubKey  `json:"pub_key"`
	PrivKey crypto.PrivKey `json:"priv_key"`

	filePath string
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() {
	outFile := pvKey.filePath
	if outFile == "" {
		panic("cannot save agent key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		panic(err)
	}
	err = tempfile.WriteFileAtomic(outFile, jsonBytes, 0600)
	if err != nil {
		panic(err)
	}
}

//-------------------------------------------------------------------------------

// FilePV is the agent's signing identity persisted to disk. Every payload the
// behaviour scheduler submits is signed with this key; the address derived
// from it is the agent's identity in the participant set.
type FilePV struct {
	Key FilePVKey
}

// NewFilePV wraps the given key with the file path it is persisted at.
func NewFilePV(privKey crypto.PrivKey, keyFilePath string) *FilePV {
	return &FilePV{
		Key: FilePVKey{
			Address:  types.AddressFromPubKey(privKey.PubKey()),
			PubKey:   privKey.PubKey(),
			PrivKey:  privKey,
			filePath: keyFilePath,
		},
	}
}

// GenFilePVWithSeedAndIdx derives agent idx's key from the cluster seed.
// All agents of a generated local network share the seed; the threshold
// polynomial gives each a distinct key.
func GenFilePVWithSeedAndIdx(keyFilePath string, thresholdVal int, idx, seed int64) *FilePV {
	primary := bls.GenPrivKeyWithSeed(seed)

	poly := threshold.Master(primary, thresholdVal, seed)

	priv, err := poly.GetValue(idx)
	if err != nil {
		panic(err)
	}
	return NewFilePV(priv, keyFilePath)
}

// GenFilePV generates a new agent identity with a random private key and sets
// the file path, but does not call Save().
func GenFilePV(keyFilePath string) *FilePV {
	return NewFilePV(bls.GenPrivKey(), keyFilePath)
}

// LoadFilePV loads a FilePV from the file path. The program exits if the file
// is missing or unreadable.
func LoadFilePV(keyFilePath string) *FilePV {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		tmos.Exit(err.Error())
	}
	pvKey := FilePVKey{}
	err = tmjson.Unmarshal(keyJSONBytes, &pvKey)
	if err != nil {
		tmos.Exit(fmt.Sprintf("Error reading agent key from %v: %v\n", keyFilePath, err))
	}

	// overwrite pubkey and address for convenience
	pvKey.PubKey = pvKey.PrivKey.PubKey()
	pvKey.Address = types.AddressFromPubKey(pvKey.PubKey)
	pvKey.filePath = keyFilePath

	return &FilePV{
		Key: pvKey,
	}
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() {
	pv.Key.Save()
}

// GetAddress returns the agent address.
func (pv *FilePV) GetAddress() types.Address {
	return pv.Key.Address
}

// GetPubKey returns the agent public key.
func (pv *FilePV) GetPubKey() (crypto.PubKey, error) {
	return pv.Key.PubKey, nil
}

// SignPayload signs the canonical payload bytes.
func (pv *FilePV) SignPayload(payload types.Payload) (types.Tx, error) {
	return types.SignTx(pv.Key.PrivKey, payload)
}
