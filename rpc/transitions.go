package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"github.com/kongzii/open-autonomy/store"
)

type ResultTransitions struct {
	Transitions []store.TransitionEntry `json:"transitions"`
}

// Transitions returns the audit log of round exits in append order.
func Transitions(ctx *rpctypes.Context) (*ResultTransitions, error) {
	entries, err := env.Store.Transitions()
	if err != nil {
		return nil, err
	}
	return &ResultTransitions{Transitions: entries}, nil
}
