package metrics

import "github.com/prometheus/client_golang/prometheus"

// namespace prefixes every metric name exported by this package.
const namespace = "e2ee"

// Registry is the Prometheus registry every metric in this package binds
// to via promauto.With(Registry). A dedicated registry (rather than the
// global default) keeps relay metrics isolated from anything else in the
// process and lets Handler/StartServer serve exactly this package's set.
var Registry = prometheus.NewRegistry()
