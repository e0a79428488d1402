package replay

import "time"

// Freshness window parameters (§4.5): W is the maximum age of an accepted
// timestamp, S is the permitted clock skew allowing a small amount of
// future drift.
const (
	FreshnessWindowMs = 120_000
	ClockSkewMs       = 60_000
)

// CheckFreshness implements §4.5 step 2: accept iff
// -(W+S) <= age <= W, where age = now - timestamp. clockOffsetMs lets a
// server apply an additional correction it has measured for the caller;
// pass 0 when none applies.
func CheckFreshness(timestampMs int64, nowMs int64, clockOffsetMs int64) error {
	age := nowMs - timestampMs + clockOffsetMs
	if age < -(FreshnessWindowMs+ClockSkewMs) || age > FreshnessWindowMs {
		return ErrStaleTimestamp
	}
	return nil
}

// NowMs is the wall-clock source used by callers that don't already carry
// a timestamp from elsewhere (e.g. the KEP state machine stamping
// freshness checks against the current time).
func NowMs() int64 { return time.Now().UnixMilli() }
