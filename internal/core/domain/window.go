package domain

import "fmt"

// Window is the inclusive time range [Start, End] queried in one cycle.
// Both bounds are unix timestamps in seconds.
type Window struct {
	Start int64
	End   int64
}

// Width returns End - Start in seconds.
func (w Window) Width() int64 {
	return w.End - w.Start
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d]", w.Start, w.End)
}
