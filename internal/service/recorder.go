package service

import "time"

// Recorder receives the counters and timings the services produce. The
// prometheus Metrics in the http adapter implement it.
type Recorder interface {
	// ObserveCheck records one authorization decision. reason is
	// "allowed" or the rejection reason.
	ObserveCheck(reason string, d time.Duration)

	// AdminMutation records one rule or membership change attempt.
	// status is "ok", "rejected" or "error".
	AdminMutation(op, status string)

	// Execution records one forwarded transaction by outcome.
	Execution(status string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCheck(string, time.Duration) {}
func (nopRecorder) AdminMutation(string, string)       {}
func (nopRecorder) Execution(string)                   {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
