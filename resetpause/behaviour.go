package resetpause

import (
	"time"

	"github.com/kongzii/open-autonomy/behaviour"
	"github.com/kongzii/open-autonomy/types"
)

// PauseBehaviour mirrors the reset-and-pause round. It idles for the
// configured interval before voting, so the service breathes between
// periods instead of spinning.
type PauseBehaviour struct {
	behaviour.BaseBehaviour

	// PauseInterval is how long the agent waits before proposing the next
	// period. Zero means no pause.
	PauseInterval time.Duration

	enteredAt time.Time
}

var _ behaviour.Behaviour = (*PauseBehaviour)(nil)

func NewPauseBehaviour(pause time.Duration) *PauseBehaviour {
	return &PauseBehaviour{
		BaseBehaviour: behaviour.NewBaseBehaviour("reset_and_pause", ResetAndPauseRoundID),
		PauseInterval: pause,
	}
}

func (b *PauseBehaviour) Reset() {
	b.BaseBehaviour.Reset()
	b.enteredAt = time.Time{}
}

func (b *PauseBehaviour) Act(env *behaviour.Environment) (behaviour.Outcome, error) {
	if b.enteredAt.IsZero() {
		b.enteredAt = time.Now()
	}
	if !b.TxSent() && time.Since(b.enteredAt) < b.PauseInterval {
		return behaviour.OutcomeSuspend, nil
	}
	return b.SubmitAndWait(env, func() types.Payload {
		next := env.Observer.PeriodCount() + 1
		return NewPayload(env.Agent.GetAddress(), ResetAndPauseRoundID, next)
	})
}

// ResetBehaviour mirrors the plain reset round: vote for the next period
// count immediately.
type ResetBehaviour struct {
	behaviour.BaseBehaviour
}

var _ behaviour.Behaviour = (*ResetBehaviour)(nil)

func NewResetBehaviour() *ResetBehaviour {
	return &ResetBehaviour{BaseBehaviour: behaviour.NewBaseBehaviour("reset", ResetRoundID)}
}

func (b *ResetBehaviour) Act(env *behaviour.Environment) (behaviour.Outcome, error) {
	return b.SubmitAndWait(env, func() types.Payload {
		next := env.Observer.PeriodCount() + 1
		return NewPayload(env.Agent.GetAddress(), ResetRoundID, next)
	})
}
