package metric

// MetricItem is one component's self-reported metric block. Implementations
// render their current values as a JSON object.
type MetricItem interface {
	JSONString() string
}

type mockMetricItem struct {
	name string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.name
}
