package notify

import "time"

// RetryPolicy controls inline retries of a failed transport call. Disabled
// means a single attempt.
type RetryPolicy struct {
	Enabled    bool
	MaxRetries int
	Backoff    time.Duration
}

// attempts is the total number of transport calls for one notification.
func (p RetryPolicy) attempts() int {
	if !p.Enabled || p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// delay is the wait after the given failed attempt, doubling each time.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
