package fsm

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/kongzii/open-autonomy/round"
	"github.com/kongzii/open-autonomy/state"
	"github.com/kongzii/open-autonomy/types"
)

// EventRoundExit is fired on the event switch every time the graph leaves a
// round; the behaviour scheduler wakes on it.
const EventRoundExit = "RoundExit"

// RoundTransition is the event data carried by EventRoundExit.
type RoundTransition struct {
	Exited     string
	Event      types.Event
	Entered    string
	Period     int64
	Generation int64
}

// App is a live instance of a transition graph. The protocol bridge is its
// single writer; it calls ProcessEvent and CheckTimeouts in the block order
// the consensus engine imposes.
type App struct {
	spec   AppSpec
	logger log.Logger
	evsw   events.EventSwitch

	current      round.Round
	currentID    string
	finished     bool
	restartRound string

	periodStartCount int64

	lastTimestamp time.Time
	timeouts      *timeoutQueue
	generation    int64
}

type AppOption func(*App)

// SetEventSwitch attaches the switch round transitions are announced on.
func SetEventSwitch(evsw events.EventSwitch) AppOption {
	return func(app *App) { app.evsw = evsw }
}

// SetRestartRound selects the entry round for periods after the first. The
// default is the graph's initial round; applications whose bootstrap round
// is one-time-only point this at the lighter re-entry round.
func SetRestartRound(id string) AppOption {
	return func(app *App) { app.restartRound = id }
}

// NewApp validates the app spec and returns an app ready for Setup.
func NewApp(spec AppSpec, logger log.Logger, options ...AppOption) (*App, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	app := &App{
		spec:     spec,
		logger:   logger,
		timeouts: newTimeoutQueue(),
	}
	for _, option := range options {
		option(app)
	}
	if app.restartRound != "" && !spec.isInitial(app.restartRound) {
		return nil, errors.Errorf("restart round %s is not an initial state", app.restartRound)
	}
	return app, nil
}

func (app *App) SetLogger(logger log.Logger) {
	app.logger = logger
}

// Setup enters the graph's initial round with the given period state.
func (app *App) Setup(initial *state.PeriodState) error {
	return app.SetupWithEntry(initial, app.spec.InitialRound)
}

// SetupWithEntry enters the graph at a specific initial state. A restarted
// agent resumes from whichever entry round its persisted state indicates.
func (app *App) SetupWithEntry(initial *state.PeriodState, entry string) error {
	if !app.spec.isInitial(entry) {
		return errors.Errorf("round %s is not an initial state", entry)
	}
	if err := initial.Validate(); err != nil {
		return errors.Wrap(err, "invalid initial period state")
	}
	app.finished = false
	app.periodStartCount = initial.PeriodCount()
	app.enterRound(entry, initial)
	return nil
}

// CurrentRound returns the active round. Nil before Setup.
func (app *App) CurrentRound() round.Round {
	return app.current
}

func (app *App) CurrentRoundID() string {
	return app.currentID
}

// Generation identifies the active round instance. It increments on every
// round entry, so two consecutive instances of the same round type are
// distinguishable.
func (app *App) Generation() int64 {
	return app.generation
}

// PeriodState is the snapshot the active round was entered with.
func (app *App) PeriodState() *state.PeriodState {
	if app.current == nil {
		return nil
	}
	return app.current.PeriodState()
}

func (app *App) PeriodCount() int64 {
	if ps := app.PeriodState(); ps != nil {
		return ps.PeriodCount()
	}
	return 0
}

// Finished reports whether the graph has entered a final state.
func (app *App) Finished() bool {
	return app.finished
}

// LastTimestamp is the block time the graph last observed.
func (app *App) LastTimestamp() time.Time {
	return app.lastTimestamp
}

// SetBlockTime primes the graph's clock before the first block, typically
// with the genesis time from init_chain. Timeout deadlines are computed
// relative to it.
func (app *App) SetBlockTime(t time.Time) {
	app.lastTimestamp = t
}

// ProcessEvent advances the graph along the edge the active round's outcome
// selects. An event with no configured edge is a configuration error the
// spec validation could not see (it depends on what the round emits), so it
// is returned for the bridge to fail on.
func (app *App) ProcessEvent(next *state.PeriodState, ev types.Event) error {
	if app.current == nil {
		return errors.New("process event: no active round")
	}
	edges := app.spec.TransitionFunction[app.currentID]
	dst, ok := edges[ev]
	if !ok {
		return errors.Errorf(
			"round %s emitted event %s but the transition function has no edge for it",
			app.currentID, ev)
	}

	exited := app.currentID
	app.logger.Info(fmt.Sprintf("%s exited with event %s", exited, ev))
	app.enterRound(dst, next)

	if app.evsw != nil {
		app.evsw.FireEvent(EventRoundExit, RoundTransition{
			Exited:     exited,
			Event:      ev,
			Entered:    app.currentID,
			Period:     app.PeriodCount(),
			Generation: app.generation,
		})
	}
	return nil
}

// CheckTimeouts records the new block time and synthesizes every timeout
// event that has come due, advancing the graph for each. The engine's block
// timestamps are the only clock consulted.
func (app *App) CheckTimeouts(blockTime time.Time) error {
	app.lastTimestamp = blockTime
	for {
		entry, ok := app.timeouts.popExpired(blockTime, app.generation)
		if !ok {
			return nil
		}
		app.logger.Info(fmt.Sprintf("round timeout: synthesizing event %s", entry.event),
			"round", app.currentID, "deadline", entry.deadline)
		if err := app.ProcessEvent(app.current.PeriodState(), entry.event); err != nil {
			return err
		}
	}
}

// ResetPeriod starts the next period: persisted keys survive, everything
// else reverts to defaults, and the graph re-enters its initial round. If
// the application did not itself agree on a new period count during the
// period, the count is bumped here so every full cycle increments it.
func (app *App) ResetPeriod() error {
	if app.current == nil {
		return errors.New("reset period: no active round")
	}
	ps := app.current.PeriodState().ResetPeriod()
	if ps.PeriodCount() == app.periodStartCount {
		ps = ps.Update(map[string]interface{}{
			state.PeriodCountKey: app.periodStartCount + 1,
		})
	}
	app.logger.Info("period finished", "period", app.periodStartCount, "next", ps.PeriodCount())
	if app.restartRound != "" {
		return app.SetupWithEntry(ps, app.restartRound)
	}
	return app.Setup(ps)
}

func (app *App) enterRound(id string, ps *state.PeriodState) {
	factory := app.spec.RoundFactories[id]
	app.current = factory(ps)
	app.currentID = id
	app.generation++

	if app.spec.isFinal(id) {
		app.finished = true
	} else if !app.lastTimestamp.IsZero() {
		for ev := range app.spec.TransitionFunction[id] {
			if timeout, ok := app.spec.EventToTimeout[ev]; ok {
				app.timeouts.push(app.lastTimestamp.Add(timeout), ev, app.generation)
			}
		}
	}

	app.logger.Info(fmt.Sprintf("Entered round %s in period %d", id, ps.PeriodCount()))
}
