// Package registry holds the HTTP clients the startup behaviour talks to:
// the on-chain service registry (through an indexer gateway) and the local
// consensus-node sidecar.
package registry

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/kongzii/open-autonomy/types"
)

var cdc = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultClientTimeout = 10 * time.Second

// ServiceInfo is the registry's record for one deployed service.
type ServiceInfo struct {
	ServiceID      int64           `json:"service_id"`
	Threshold      int             `json:"threshold"`
	AgentInstances []types.Address `json:"agent_instances"`
}

// ServiceRegistry queries the service registry contract for the canonical
// participant set of a service.
type ServiceRegistry struct {
	baseURL string
	client  *http.Client
}

func NewServiceRegistry(baseURL string) *ServiceRegistry {
	return &ServiceRegistry{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultClientTimeout},
	}
}

// VerifyContract checks that the registry at the configured address is the
// expected contract deployment.
func (r *ServiceRegistry) VerifyContract(ctx context.Context, contractAddress string) (bool, error) {
	var out struct {
		Verified bool   `json:"verified"`
		Error    string `json:"error"`
	}
	u := fmt.Sprintf("%s/verify/%s", r.baseURL, url.PathEscape(contractAddress))
	if err := r.getJSON(ctx, u, &out); err != nil {
		return false, err
	}
	if out.Error != "" {
		return false, errors.Errorf("contract verification failed: %s", out.Error)
	}
	return out.Verified, nil
}

// GetServiceInfo fetches the registered agent instances for a service id.
func (r *ServiceRegistry) GetServiceInfo(ctx context.Context, serviceID int64) (*ServiceInfo, error) {
	var out ServiceInfo
	u := fmt.Sprintf("%s/services/%d", r.baseURL, serviceID)
	if err := r.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	if len(out.AgentInstances) == 0 {
		return nil, errors.Errorf("service %d has no registered agent instances", serviceID)
	}
	return &out, nil
}

func (r *ServiceRegistry) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := r.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "registry request %s failed", url)
	}
	defer res.Body.Close()
	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("registry request %s: status %d: %s", url, res.StatusCode, body)
	}
	return cdc.Unmarshal(body, out)
}
