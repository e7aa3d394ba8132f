package attempt

// Navigator tracks the question on screen. Moves clamp at both ends.
type Navigator struct {
	current int
	total   int
}

// NewNavigator creates a navigator over total questions, positioned at 0.
func NewNavigator(total int) *Navigator {
	return &Navigator{total: total}
}

// Current returns the current question index.
func (n *Navigator) Current() int {
	return n.current
}

// GoTo jumps to index, clamped to [0, total-1].
func (n *Navigator) GoTo(index int) int {
	switch {
	case n.total == 0 || index < 0:
		n.current = 0
	case index > n.total-1:
		n.current = n.total - 1
	default:
		n.current = index
	}
	return n.current
}

// Next moves forward by one without wrapping.
func (n *Navigator) Next() int {
	return n.GoTo(n.current + 1)
}

// Previous moves back by one without wrapping.
func (n *Navigator) Previous() int {
	return n.GoTo(n.current - 1)
}
