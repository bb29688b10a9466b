// Package registration implements the bootstrap stage shared by every
// composed application: agents announce themselves, agree on the initial
// period data and hand over to the business rounds.
package registration

import (
	"github.com/kongzii/open-autonomy/types"
)

// TxType tags registration payloads on the wire.
const TxType = "registration"

// Payload announces one agent for the coming periods. Initialisation is the
// canonical (sorted-key) JSON serialization of the initial period data, or
// empty when the agent proposes none.
type Payload struct {
	types.BasePayload
	Initialisation string `json:"initialisation,omitempty"`
}

var _ types.Payload = (*Payload)(nil)

func (p *Payload) TxType() string { return TxType }

func NewPayload(sender types.Address, roundID, initialisation string) *Payload {
	return &Payload{
		BasePayload:    types.BasePayload{PayloadSender: sender, PayloadRoundID: roundID},
		Initialisation: initialisation,
	}
}

func init() {
	types.RegisterPayload(TxType, func() types.Payload { return &Payload{} })
}
