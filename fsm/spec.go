// Package fsm defines the transition graph over round types and drives a
// live instance of it: one period is one run of the graph from an initial
// round to a final round.
package fsm

import (
	"time"

	"github.com/pkg/errors"

	"github.com/kongzii/open-autonomy/round"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

// RoundFactory instantiates a round type with the period state snapshot the
// round is entered with.
type RoundFactory func(*state.PeriodState) round.Round

// AppSpec is the static definition of an application: its round types, the
// transitions between them keyed by outcome event, and the per-event
// timeouts. A spec is validated once at construction; a malformed graph is a
// startup failure, never a runtime one.
type AppSpec struct {
	// InitialRound is the default entry round of a period.
	InitialRound string

	// InitialStates lists every plausible entry round; a restarted agent may
	// resume from any of them.
	InitialStates []string

	// TransitionFunction maps each non-final round type to its outgoing
	// edges keyed by event.
	TransitionFunction map[string]map[types.Event]string

	// FinalStates are the degenerate sinks; entering one ends the period.
	FinalStates []string

	// EventToTimeout gives events a deadline: if the active round emits no
	// decision before it elapses (in block time), the bridge synthesizes the
	// event and the graph advances on it.
	EventToTimeout map[types.Event]time.Duration

	// RoundFactories instantiates each round type named by the graph.
	RoundFactories map[string]RoundFactory
}

func (spec AppSpec) isFinal(id string) bool {
	for _, s := range spec.FinalStates {
		if s == id {
			return true
		}
	}
	return false
}

func (spec AppSpec) isInitial(id string) bool {
	for _, s := range spec.InitialStates {
		if s == id {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of the graph. It fails fast on
// configuration errors that would otherwise surface mid-period.
func (spec AppSpec) Validate() error {
	if spec.InitialRound == "" {
		return errors.New("app spec: initial round not set")
	}
	if !spec.isInitial(spec.InitialRound) {
		return errors.Errorf("app spec: initial round %s not in initial states", spec.InitialRound)
	}

	known := make(map[string]bool)
	for id := range spec.TransitionFunction {
		known[id] = true
	}
	for _, id := range spec.FinalStates {
		known[id] = true
	}

	for _, id := range spec.FinalStates {
		if edges, ok := spec.TransitionFunction[id]; ok && len(edges) > 0 {
			return errors.Errorf("app spec: final state %s has outgoing transitions", id)
		}
	}
	for id, edges := range spec.TransitionFunction {
		for ev, dst := range edges {
			if !known[dst] {
				return errors.Errorf(
					"app spec: transition %s --%s--> %s targets an unknown round", id, ev, dst)
			}
		}
	}
	for _, id := range spec.InitialStates {
		if !known[id] {
			return errors.Errorf("app spec: initial state %s is not part of the graph", id)
		}
	}

	// every round reachable from the initial round must either be a
	// transition-function key or a final state
	reachable := []string{spec.InitialRound}
	seen := map[string]bool{spec.InitialRound: true}
	for len(reachable) > 0 {
		id := reachable[0]
		reachable = reachable[1:]
		edges, ok := spec.TransitionFunction[id]
		if !ok && !spec.isFinal(id) {
			return errors.Errorf("app spec: round %s is reachable but has no transitions", id)
		}
		for _, dst := range edges {
			if !seen[dst] {
				seen[dst] = true
				reachable = append(reachable, dst)
			}
		}
	}

	for id := range known {
		if _, ok := spec.RoundFactories[id]; !ok {
			return errors.Errorf("app spec: no factory registered for round %s", id)
		}
	}
	return nil
}

// Chain composes two app specs into one: selected final states of the first
// graph are replaced by entry rounds of the second, so a period runs through
// both. Timeouts of the second spec override those of the first on conflict.
func Chain(first, second AppSpec, glue map[string]string) (AppSpec, error) {
	for from, to := range glue {
		if !first.isFinal(from) {
			return AppSpec{}, errors.Errorf("chain: %s is not a final state of the first app", from)
		}
		if _, ok := second.TransitionFunction[to]; !ok && !second.isFinal(to) {
			return AppSpec{}, errors.Errorf("chain: %s is not a round of the second app", to)
		}
	}

	rewire := func(dst string) string {
		if to, ok := glue[dst]; ok {
			return to
		}
		return dst
	}

	combined := AppSpec{
		InitialRound:       first.InitialRound,
		InitialStates:      append([]string{}, first.InitialStates...),
		TransitionFunction: make(map[string]map[types.Event]string),
		EventToTimeout:     make(map[types.Event]time.Duration),
		RoundFactories:     make(map[string]RoundFactory),
	}

	for id, edges := range first.TransitionFunction {
		if _, glued := glue[id]; glued {
			continue
		}
		out := make(map[types.Event]string, len(edges))
		for ev, dst := range edges {
			out[ev] = rewire(dst)
		}
		combined.TransitionFunction[id] = out
	}
	for id, edges := range second.TransitionFunction {
		out := make(map[types.Event]string, len(edges))
		for ev, dst := range edges {
			out[ev] = dst
		}
		combined.TransitionFunction[id] = out
	}

	for _, id := range first.FinalStates {
		if _, glued := glue[id]; !glued {
			combined.FinalStates = append(combined.FinalStates, id)
		}
	}
	combined.FinalStates = append(combined.FinalStates, second.FinalStates...)

	for ev, to := range first.EventToTimeout {
		combined.EventToTimeout[ev] = to
	}
	for ev, to := range second.EventToTimeout {
		combined.EventToTimeout[ev] = to
	}

	for id, factory := range first.RoundFactories {
		if _, glued := glue[id]; !glued {
			combined.RoundFactories[id] = factory
		}
	}
	for id, factory := range second.RoundFactories {
		combined.RoundFactories[id] = factory
	}

	if err := combined.Validate(); err != nil {
		return AppSpec{}, errors.Wrap(err, "chained spec invalid")
	}
	return combined, nil
}
