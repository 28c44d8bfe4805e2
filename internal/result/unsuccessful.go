package result

// Unsuccessful counts the ways results can fall short.
type Unsuccessful struct {
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

// Add returns the field-wise sum of u and other.
func (u Unsuccessful) Add(other Unsuccessful) Unsuccessful {
	return Unsuccessful{
		Failed:  u.Failed + other.Failed,
		Errored: u.Errored + other.Errored,
		Skipped: u.Skipped + other.Skipped,
	}
}

// Total includes skips.
func (u Unsuccessful) Total() int {
	return u.Failed + u.Errored + u.Skipped
}

// CausesStop is true for failures and errors, never for skips alone.
func (u Unsuccessful) CausesStop() bool {
	return u.Failed > 0 || u.Errored > 0
}

// StopCount is the number that max-fail thresholds compare against.
func (u Unsuccessful) StopCount() int {
	return u.Failed + u.Errored
}

// IsZero reports whether nothing went wrong.
func (u Unsuccessful) IsZero() bool {
	return u.Total() == 0
}
