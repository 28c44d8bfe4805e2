package engine

import (
	"github.com/roach88/bowtie/internal/result"
)

// StopPolicy decides when a run ends before its input does.
//
// FailFast stops after the first case with a failed or errored result.
// MaxFail stops once the run's cumulative failed+errored count reaches the
// threshold. Skips count toward neither. The two are mutually exclusive.
type StopPolicy struct {
	FailFast bool
	MaxFail  int
}

// Validate rejects contradictory settings.
func (p StopPolicy) Validate() error {
	if p.MaxFail < 0 {
		return NewConfigError("--max-fail must not be negative", nil)
	}
	if p.FailFast && p.MaxFail > 0 {
		return NewConfigError("--fail-fast and --max-fail are mutually exclusive", nil)
	}
	return nil
}

// ShouldStop is evaluated after each case with that case's unsuccessful
// counts and the run's running total (which already includes the case).
func (p StopPolicy) ShouldStop(thisCase, total result.Unsuccessful) bool {
	if p.FailFast && thisCase.CausesStop() {
		return true
	}
	return p.MaxFail > 0 && total.StopCount() >= p.MaxFail
}
