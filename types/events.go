package types

// Event labels the outcome of a round. The framework itself attaches no
// meaning to any particular value; applications declare their own events in
// their transition functions. The only convention is that timeout events are
// synthesized by the protocol bridge when a round decides nothing before its
// configured deadline.
type Event string

func (e Event) String() string {
	return string(e)
}
