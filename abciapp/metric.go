package abciapp

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

func newBridgeMetric() *bridgeMetric {
	return &bridgeMetric{
		Height:        0,
		BlockTime:     time.Time{},
		CurrentRound:  "",
		PeriodCount:   0,
		TxsChecked:    0,
		TxsRejected:   0,
		TxsDelivered:  0,
		RoundsExited:  0,
		PeriodsClosed: 0,
	}
}

type bridgeMetric struct {
	Height       int64     `json:"last_block_height"`
	BlockTime    time.Time `json:"last_block_time"`
	CurrentRound string    `json:"current_round"`
	PeriodCount  int64     `json:"period_count"`

	TxsChecked   int64 `json:"txs_checked"`
	TxsRejected  int64 `json:"txs_rejected"`
	TxsDelivered int64 `json:"txs_delivered"`

	RoundsExited  int64 `json:"rounds_exited"`
	PeriodsClosed int64 `json:"periods_closed"`
}

func (bm *bridgeMetric) JSONString() string {
	s, _ := jsoniter.MarshalToString(bm)
	return s
}

func (bm *bridgeMetric) MarkBlock(height int64, t time.Time) {
	bm.Height = height
	bm.BlockTime = t
}

func (bm *bridgeMetric) MarkRound(round string, period int64) {
	bm.CurrentRound = round
	bm.PeriodCount = period
}

func (bm *bridgeMetric) MarkTxChecked(ok bool) {
	bm.TxsChecked++
	if !ok {
		bm.TxsRejected++
	}
}

func (bm *bridgeMetric) MarkTxDelivered() {
	bm.TxsDelivered++
}

func (bm *bridgeMetric) MarkRoundExited() {
	bm.RoundsExited++
}

func (bm *bridgeMetric) MarkPeriodClosed() {
	bm.PeriodsClosed++
}
