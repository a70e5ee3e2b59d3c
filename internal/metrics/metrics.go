package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the server
	Registry = prometheus.NewRegistry()

	// DutyTransitions counts lifecycle transitions by operation and outcome
	DutyTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "duty_transitions_total", Help: "Duty lifecycle operations by op and outcome."},
		[]string{"op", "outcome"},
	)
	// OdometerRejections counts odometer-regression validation failures
	OdometerRejections = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "odometer_rejections_total", Help: "Start/complete calls rejected for odometer regression."},
	)
	// LocationWrites counts position merge writes by result
	LocationWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "location_writes_total", Help: "Driver position writes by result."},
		[]string{"result"},
	)
	// RealtimeClients tracks connected WebSocket subscribers
	RealtimeClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "realtime_clients", Help: "Connected realtime WebSocket clients."},
	)
)

var regOnce sync.Once

// RegisterDefault registers collectors to the registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(DutyTransitions)
		Registry.MustRegister(OdometerRejections)
		Registry.MustRegister(LocationWrites)
		Registry.MustRegister(RealtimeClients)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
