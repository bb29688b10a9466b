package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ValidatorConfig is one entry of the validator set pushed to the sidecar.
type ValidatorConfig struct {
	Address string          `json:"address"`
	PubKey  json.RawMessage `json:"pub_key"`
	Power   string          `json:"power"`
	Name    string          `json:"name"`
}

// GenesisConfig carries the genesis fields the sidecar rewrites before
// restarting its consensus node.
type GenesisConfig struct {
	GenesisTime     string          `json:"genesis_time"`
	ChainID         string          `json:"chain_id"`
	ConsensusParams json.RawMessage `json:"consensus_params,omitempty"`
}

// SidecarClient talks to the control server running next to the local
// consensus node. The server exposes the node's validator identity and
// accepts a regenerated genesis before restarts.
type SidecarClient struct {
	baseURL string
	client  *http.Client
}

func NewSidecarClient(baseURL string) *SidecarClient {
	return &SidecarClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultClientTimeout},
	}
}

// GetParams returns the local node's validator key material (address and
// public key; the private key never leaves the sidecar).
func (c *SidecarClient) GetParams(ctx context.Context) (json.RawMessage, error) {
	var out struct {
		Params json.RawMessage `json:"params"`
		Status bool            `json:"status"`
		Error  *string         `json:"error"`
	}
	if err := c.do(ctx, http.MethodGet, "/params", nil, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, errors.Errorf("sidecar could not read params: %s", errString(out.Error))
	}
	return out.Params, nil
}

// UpdateParams pushes the agreed genesis configuration and validator set.
func (c *SidecarClient) UpdateParams(ctx context.Context, genesis GenesisConfig, validators []ValidatorConfig) error {
	body := struct {
		GenesisConfig GenesisConfig     `json:"genesis_config"`
		Validators    []ValidatorConfig `json:"validators"`
	}{genesis, validators}
	var out struct {
		Status bool    `json:"status"`
		Error  *string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/params", body, &out); err != nil {
		return err
	}
	if !out.Status {
		return errors.Errorf("sidecar rejected params: %s", errString(out.Error))
	}
	return nil
}

// Start asks the sidecar to (re)start its consensus node.
func (c *SidecarClient) Start(ctx context.Context) error {
	var out struct {
		Response string `json:"response"`
		Status   int    `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/start", nil, &out); err != nil {
		return err
	}
	if out.Status != http.StatusOK {
		return errors.Errorf("sidecar start failed: %s", out.Response)
	}
	return nil
}

// GentleReset restarts the consensus node without wiping its state.
func (c *SidecarClient) GentleReset(ctx context.Context) error {
	var out struct {
		Message string `json:"message"`
		Status  bool   `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/gentle_reset", nil, &out); err != nil {
		return err
	}
	if !out.Status {
		return errors.Errorf("gentle reset failed: %s", out.Message)
	}
	return nil
}

// HardReset wipes the consensus node's block store and restarts it.
func (c *SidecarClient) HardReset(ctx context.Context) error {
	var out struct {
		Message string `json:"message"`
		Status  bool   `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/hard_reset", nil, &out); err != nil {
		return err
	}
	if !out.Status {
		return errors.Errorf("hard reset failed: %s", out.Message)
	}
	return nil
}

func (c *SidecarClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var rd *bytes.Reader
	if in != nil {
		bz, err := cdc.Marshal(in)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(bz)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "sidecar request %s failed", path)
	}
	defer res.Body.Close()
	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return err
	}
	return cdc.Unmarshal(body, out)
}

func errString(s *string) string {
	if s == nil {
		return "unknown error"
	}
	return *s
}
