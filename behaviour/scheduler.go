package behaviour

import (
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/service"

	"github.com/kongzii/open-autonomy/fsm"
	"github.com/kongzii/open-autonomy/libs/metric"
)

const (
	defaultSleepTime      = 1 * time.Second
	defaultRequestTimeout = 10 * time.Second

	schedulerListenerID = "behaviour-scheduler"
)

// Scheduler drives behaviours on a single goroutine. After every step it
// looks up the behaviour mirroring the currently active round, so the
// replicated transition graph, not local control flow, decides what runs
// next.
type Scheduler struct {
	service.BaseService

	env        *Environment
	behaviours map[string]Behaviour

	evsw events.EventSwitch

	// wakeCh is notified on round transitions and back-off expiry. Capacity
	// one: coalescing wake-ups is fine, the loop re-reads the observer.
	wakeCh chan struct{}

	current    Behaviour
	currentGen int64

	metric *schedulerMetric
}

// NewScheduler builds a scheduler over the given behaviours, indexed by
// their matching round.
func NewScheduler(env *Environment, behaviours []Behaviour) (*Scheduler, error) {
	if env.SleepTime <= 0 {
		env.SleepTime = defaultSleepTime
	}
	if env.RequestTimeout <= 0 {
		env.RequestTimeout = defaultRequestTimeout
	}
	byRound := make(map[string]Behaviour, len(behaviours))
	for _, b := range behaviours {
		if _, ok := byRound[b.MatchingRound()]; ok {
			return nil, errors.Errorf("duplicate behaviour for round %s", b.MatchingRound())
		}
		byRound[b.MatchingRound()] = b
	}
	s := &Scheduler{
		env:        env,
		behaviours: byRound,
		wakeCh:     make(chan struct{}, 1),
		metric:     newSchedulerMetric(),
	}
	s.BaseService = *service.NewBaseService(env.Logger, "Scheduler", s)
	return s, nil
}

// Metric returns the scheduler's metric item for registration with a metric
// set.
func (s *Scheduler) Metric() metric.MetricItem {
	return s.metric
}

// SetEventSwitch wires the scheduler to the bridge's event switch so round
// exits wake any suspended behaviour. Must be called before Start.
func (s *Scheduler) SetEventSwitch(evsw events.EventSwitch) {
	s.evsw = evsw
}

func (s *Scheduler) OnStart() error {
	if s.evsw != nil {
		err := s.evsw.AddListenerForEvent(schedulerListenerID, fsm.EventRoundExit,
			func(events.EventData) {
				s.wake()
			})
		if err != nil {
			return err
		}
	}
	go s.actRoutine()
	return nil
}

func (s *Scheduler) OnStop() {
	if s.evsw != nil {
		s.evsw.RemoveListener(schedulerListenerID)
	}
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// actRoutine is the sole goroutine entering behaviour code.
func (s *Scheduler) actRoutine() {
	for {
		b := s.activeBehaviour()
		if b == nil {
			// No behaviour mirrors the active round; wait for the graph to
			// move on.
			if !s.sleepOrQuit(s.env.SleepTime) {
				return
			}
			continue
		}

		outcome, err := b.Act(s.env)
		s.metric.acts.Mark(1)
		if err != nil {
			s.metric.failures.Inc(1)
			s.Logger.Error("behaviour step failed", "behaviour", b.StateID(), "err", err)
			if !s.sleepOrQuit(s.env.SleepTime) {
				return
			}
			continue
		}

		switch outcome {
		case OutcomeContinue:
			// Re-enter immediately.
		case OutcomeDone:
			s.metric.done.Inc(1)
			s.Logger.Debug("behaviour done", "behaviour", b.StateID())
			s.current = nil
		case OutcomeSuspend:
			if !s.sleepOrQuit(s.env.SleepTime) {
				return
			}
		}

		select {
		case <-s.Quit():
			return
		default:
		}
	}
}

// activeBehaviour returns the behaviour mirroring the current round,
// resetting it on entry. A new round generation means a new round instance,
// so the behaviour is reset even when the round type is unchanged (a
// no-majority or timeout self-transition) and resubmits into the retried
// round.
func (s *Scheduler) activeBehaviour() Behaviour {
	roundID := s.env.Observer.CurrentRoundID()
	b, ok := s.behaviours[roundID]
	if !ok {
		if s.current != nil {
			s.current = nil
		}
		return nil
	}
	gen := s.env.Observer.RoundGeneration()
	if b != s.current || gen != s.currentGen {
		b.Reset()
		s.current = b
		s.currentGen = gen
		s.Logger.Info("entering behaviour", "behaviour", b.StateID(), "round", roundID,
			"period", s.env.Observer.PeriodCount())
	}
	return b
}

// sleepOrQuit parks until a wake-up, the back-off expires or the service
// stops. Returns false when the service is quitting.
func (s *Scheduler) sleepOrQuit(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.wakeCh:
		return true
	case <-t.C:
		return true
	case <-s.Quit():
		return false
	}
}
