package behaviour

import (
	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

// schedulerMetric tracks the act loop: step rate, step failures and
// completed behaviours.
type schedulerMetric struct {
	acts     metrics.Meter
	failures metrics.Counter
	done     metrics.Counter
}

func newSchedulerMetric() *schedulerMetric {
	return &schedulerMetric{
		acts:     metrics.NewMeter(),
		failures: metrics.NewCounter(),
		done:     metrics.NewCounter(),
	}
}

func (sm *schedulerMetric) JSONString() string {
	s, _ := jsoniter.MarshalToString(map[string]interface{}{
		"acts":            sm.acts.Count(),
		"act_rate_1m":     sm.acts.Rate1(),
		"failures":        sm.failures.Count(),
		"behaviours_done": sm.done.Count(),
	})
	return s
}
