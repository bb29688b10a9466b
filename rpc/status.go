package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultStatus struct {
	Height       int64  `json:"height"`
	CurrentRound string `json:"current_round"`
	PeriodCount  int64  `json:"period_count"`
}

// Status reports where the replicated application currently is.
func Status(ctx *rpctypes.Context) (*ResultStatus, error) {
	return &ResultStatus{
		Height:       env.Bridge.Height(),
		CurrentRound: env.Bridge.CurrentRoundID(),
		PeriodCount:  env.Bridge.PeriodCount(),
	}, nil
}

type ResultPeriodState struct {
	Version int64                  `json:"version"`
	State   map[string]interface{} `json:"state"`
}

// PeriodState returns the active period state snapshot.
func PeriodState(ctx *rpctypes.Context) (*ResultPeriodState, error) {
	ps := env.Bridge.PeriodState()
	if ps == nil {
		return &ResultPeriodState{State: map[string]interface{}{}}, nil
	}
	return &ResultPeriodState{
		Version: ps.Version(),
		State:   ps.GetAll(),
	}, nil
}
