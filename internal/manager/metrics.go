package manager

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the manager's operational counters, scraped by the
// ambient /metrics endpoint.
type Metrics struct {
	MessagesHandled   *prometheus.CounterVec
	ChecklistWrites    prometheus.Counter
	BarrierInstalls    prometheus.Counter
	DispatchErrors     prometheus.Counter
}

// NewMetrics registers the manager's counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "manager_messages_handled_total",
			Help: "Messages handled by the manager, labeled by reply type.",
		}, []string{"reply_type"}),
		ChecklistWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "manager_checklist_writes_total",
			Help: "Checklist persistence writes performed by the manager.",
		}),
		BarrierInstalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "manager_barrier_installs_total",
			Help: "Race-condition barriers installed by the manager.",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "manager_dispatch_errors_total",
			Help: "Dispatch-hook invocations that returned no handler.",
		}),
	}

	reg.MustRegister(m.MessagesHandled, m.ChecklistWrites, m.BarrierInstalls, m.DispatchErrors)
	return m
}
