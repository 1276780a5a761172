// Package metrics exposes operational counters for the account runtime.
//
// Counters cover system health only; the domain's own records (registry
// entries, account directory) are the source of truth for business state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the runtime's operational counters. A nil *Metrics is
// safe to use everywhere and records nothing, so wiring stays optional
// in tests.
type Metrics struct {
	PacketsReceived *prometheus.CounterVec
	PacketsFailed   *prometheus.CounterVec
	AccountsCreated prometheus.Counter
	MessagesHandled prometheus.Counter
}

// New registers the runtime counters with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "host",
			Name:      "packets_received_total",
			Help:      "Inbound cross-chain packets by source chain.",
		}, []string{"chain"}),
		PacketsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "host",
			Name:      "packets_failed_total",
			Help:      "Inbound packets that produced an error acknowledgement.",
		}, []string{"chain"}),
		AccountsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "factory",
			Name:      "accounts_created_total",
			Help:      "Accounts whose controller and asset-holder were bound.",
		}),
		MessagesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "accord",
			Subsystem: "runtime",
			Name:      "messages_handled_total",
			Help:      "Top-level messages dispatched by the runtime.",
		}),
	}
	reg.MustRegister(m.PacketsReceived, m.PacketsFailed, m.AccountsCreated, m.MessagesHandled)
	return m
}

// PacketReceived records an inbound packet from chain.
func (m *Metrics) PacketReceived(chain string) {
	if m == nil {
		return
	}
	m.PacketsReceived.WithLabelValues(chain).Inc()
}

// PacketFailed records an errored packet from chain.
func (m *Metrics) PacketFailed(chain string) {
	if m == nil {
		return
	}
	m.PacketsFailed.WithLabelValues(chain).Inc()
}

// AccountCreated records one completed account creation.
func (m *Metrics) AccountCreated() {
	if m == nil {
		return
	}
	m.AccountsCreated.Inc()
}

// MessageHandled records one dispatched top-level message.
func (m *Metrics) MessageHandled() {
	if m == nil {
		return
	}
	m.MessagesHandled.Inc()
}
