package aggregator

import "time"

// Timer is a restartable one-shot timer. Arm restarts the countdown from
// zero; a value is delivered on C only for the most recent Arm.
type Timer interface {
	Arm(d time.Duration)
	Cancel()
	C() <-chan time.Time
}

type realTimer struct {
	t *time.Timer
}

// NewTimer returns a disarmed Timer backed by time.Timer. Since Go 1.23,
// Reset and Stop discard any undelivered expiry, so a cancelled countdown
// never fires late.
func NewTimer() Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &realTimer{t: t}
}

func (r *realTimer) Arm(d time.Duration) {
	r.t.Reset(d)
}

func (r *realTimer) Cancel() {
	r.t.Stop()
}

func (r *realTimer) C() <-chan time.Time {
	return r.t.C
}
