package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Each metrics file enqueues its collectors from init via register;
// nothing touches the default registry until the composition root calls
// MustRegister.
var (
	registerOnce sync.Once
	pending      []prometheus.Collector
)

func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister installs every queued collector, at most once. Repeated
// calls are no-ops.
func MustRegister() {
	registerOnce.Do(func() {
		if len(pending) > 0 {
			prometheus.MustRegister(pending...)
		}
	})
}
