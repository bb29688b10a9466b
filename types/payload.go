package types

import (
	"fmt"
	"sync"
)

// Payload is one participant's contribution to a round. Concrete payload
// types are plain structs with json tags; they must round-trip through the
// codec registered with RegisterPayload.
type Payload interface {
	// Sender is the address of the submitting agent.
	Sender() Address

	// RoundID names the round instance this payload is addressed to.
	// The bridge discards payloads whose round is no longer active.
	RoundID() string

	// TxType tags the payload for codec dispatch and round admission.
	TxType() string
}

// BasePayload carries the fields every payload shares. Application payloads
// embed it and add their own value fields.
type BasePayload struct {
	PayloadSender  Address `json:"sender"`
	PayloadRoundID string  `json:"round_id"`
}

func (p BasePayload) Sender() Address { return p.PayloadSender }

func (p BasePayload) RoundID() string { return p.PayloadRoundID }

// ----- payload codec registry -----

var (
	payloadMtx      sync.RWMutex
	payloadRegistry = make(map[string]func() Payload)
)

// RegisterPayload registers a constructor returning a zero-valued payload for
// the given transaction type. Decoding unmarshals into the value it returns.
// Registration happens from package init functions; duplicate registration is
// a programming error and panics.
func RegisterPayload(txType string, fn func() Payload) {
	payloadMtx.Lock()
	defer payloadMtx.Unlock()
	if _, ok := payloadRegistry[txType]; ok {
		panic(fmt.Sprintf("payload type %q registered twice", txType))
	}
	payloadRegistry[txType] = fn
}

func newPayload(txType string) (Payload, error) {
	payloadMtx.RLock()
	fn, ok := payloadRegistry[txType]
	payloadMtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown payload type %q", txType)
	}
	return fn(), nil
}
