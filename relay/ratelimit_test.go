package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiterEnforcesBurstThenRejects(t *testing.T) {
	l := NewLimiter(3, 100)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ClassKEP, "alice"), "call %d should be within burst", i)
	}
	assert.False(t, l.Allow(ClassKEP, "alice"))
}

func TestLimiterTracksCallersIndependently(t *testing.T) {
	l := NewLimiter(1, 100)
	assert.True(t, l.Allow(ClassKEP, "alice"))
	assert.False(t, l.Allow(ClassKEP, "alice"))
	assert.True(t, l.Allow(ClassKEP, "bob"))
}

func TestLimiterTracksClassesIndependently(t *testing.T) {
	l := NewLimiter(1, 1)
	assert.True(t, l.Allow(ClassKEP, "alice"))
	assert.True(t, l.Allow(ClassData, "alice"))
}

func TestDefaultLimiterUsesFallbackBudgets(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < DefaultKEPLimit; i++ {
		assert.True(t, l.Allow(ClassKEP, "alice"))
	}
	assert.False(t, l.Allow(ClassKEP, "alice"))
}
