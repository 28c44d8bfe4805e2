package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/bowtie/internal/result"
)

func TestStopPolicy_Validate(t *testing.T) {
	assert.NoError(t, StopPolicy{}.Validate())
	assert.NoError(t, StopPolicy{FailFast: true}.Validate())
	assert.NoError(t, StopPolicy{MaxFail: 3}.Validate())

	err := StopPolicy{FailFast: true, MaxFail: 1}.Validate()
	assert.True(t, IsConfigError(err))
	assert.ErrorContains(t, err, "mutually exclusive")

	assert.True(t, IsConfigError(StopPolicy{MaxFail: -1}.Validate()))
}

func TestStopPolicy_ShouldStop(t *testing.T) {
	failed := result.Unsuccessful{Failed: 1}
	errored := result.Unsuccessful{Errored: 1}
	skipped := result.Unsuccessful{Skipped: 5}

	tests := []struct {
		name     string
		policy   StopPolicy
		thisCase result.Unsuccessful
		total    result.Unsuccessful
		want     bool
	}{
		{"no policy", StopPolicy{}, failed, failed, false},
		{"fail fast on failure", StopPolicy{FailFast: true}, failed, failed, true},
		{"fail fast on error", StopPolicy{FailFast: true}, errored, errored, true},
		{"fail fast ignores skips", StopPolicy{FailFast: true}, skipped, skipped, false},
		{"fail fast ignores earlier cases", StopPolicy{FailFast: true}, result.Unsuccessful{}, failed, false},
		{"max fail below threshold", StopPolicy{MaxFail: 2}, failed, failed, false},
		{"max fail reached", StopPolicy{MaxFail: 2}, failed, failed.Add(errored), true},
		{"max fail ignores skips", StopPolicy{MaxFail: 2}, skipped, skipped.Add(failed), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.ShouldStop(tt.thisCase, tt.total))
		})
	}
}
