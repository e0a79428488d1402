package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckFreshnessBoundaries(t *testing.T) {
	now := int64(1_700_000_000_000)

	assert.NoError(t, CheckFreshness(now, now, 0), "age 0 must be accepted")
	assert.NoError(t, CheckFreshness(now-FreshnessWindowMs, now, 0), "age == W must be accepted")
	assert.NoError(t, CheckFreshness(now+FreshnessWindowMs+ClockSkewMs, now, 0), "age == -(W+S) must be accepted")

	assert.ErrorIs(t, CheckFreshness(now-FreshnessWindowMs-1, now, 0), ErrStaleTimestamp)
	assert.ErrorIs(t, CheckFreshness(now+FreshnessWindowMs+ClockSkewMs+1, now, 0), ErrStaleTimestamp)
}

func TestCheckFreshnessClockOffset(t *testing.T) {
	now := int64(1_700_000_000_000)
	// A timestamp that would be stale by W+1 is pulled back into range by
	// a server-measured clockOffset correction.
	assert.ErrorIs(t, CheckFreshness(now-FreshnessWindowMs-1, now, 0), ErrStaleTimestamp)
	assert.NoError(t, CheckFreshness(now-FreshnessWindowMs-1, now, -1))
}
