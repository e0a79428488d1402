package relay

import (
	"sync"

	"golang.org/x/time/rate"
)

// Operation classes §4.8's rate-limit policy distinguishes. Service keys
// both classes by callerID; data messages are not tracked per transport
// connection.
const (
	ClassKEP  = "kep"
	ClassData = "data"
)

// Default budgets: 10 KEP messages per 5 minutes and 60 data messages per
// minute, each per key passed to Allow.
const (
	DefaultKEPLimit  = 10
	DefaultKEPWindow = 5 // minutes
	DefaultDataLimit = 60
)

// Limiter enforces independent token-bucket budgets per (class, key),
// backed by golang.org/x/time/rate. Buckets are created lazily and never
// evicted within a process lifetime; a relay restarts its budgets on
// redeploy, which is an acceptable tradeoff for the bounded cardinality
// of caller/transport identifiers in practice.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	kepRate   rate.Limit
	kepBurst  int
	dataRate  rate.Limit
	dataBurst int
}

// NewLimiter constructs a Limiter from per-5-minutes KEP and per-minute
// data budgets. A zero value for either falls back to the default.
func NewLimiter(kepPer5Min, dataPerMin int) *Limiter {
	if kepPer5Min <= 0 {
		kepPer5Min = DefaultKEPLimit
	}
	if dataPerMin <= 0 {
		dataPerMin = DefaultDataLimit
	}
	return &Limiter{
		buckets:   make(map[string]*rate.Limiter),
		kepRate:   rate.Limit(float64(kepPer5Min) / (float64(DefaultKEPWindow) * 60)),
		kepBurst:  kepPer5Min,
		dataRate:  rate.Limit(float64(dataPerMin) / 60),
		dataBurst: dataPerMin,
	}
}

// Allow reports whether the (class, key) bucket has budget for one more
// event, consuming it if so.
func (l *Limiter) Allow(class, key string) bool {
	return l.bucketFor(class, key).Allow()
}

func (l *Limiter) bucketFor(class, key string) *rate.Limiter {
	bucketKey := class + ":" + key
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[bucketKey]; ok {
		return b
	}
	var b *rate.Limiter
	switch class {
	case ClassKEP:
		b = rate.NewLimiter(l.kepRate, l.kepBurst)
	default:
		b = rate.NewLimiter(l.dataRate, l.dataBurst)
	}
	l.buckets[bucketKey] = b
	return b
}
