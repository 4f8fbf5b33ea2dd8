package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ExchangeMetrics groups the bot's Prometheus collectors.
type ExchangeMetrics struct {
	rateFetches        *prometheus.CounterVec
	quotes             *prometheus.CounterVec
	ordersCreated      *prometheus.CounterVec
	orderTransitions   *prometheus.CounterVec
	relayMessages      *prometheus.CounterVec
	lotteryPlays       prometheus.Counter
	broadcastDelivered *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

var (
	exchangeOnce     sync.Once
	exchangeRegistry *ExchangeMetrics
)

// Exchange returns the process-wide collectors, registering them on first use.
func Exchange() *ExchangeMetrics {
	exchangeOnce.Do(func() {
		exchangeRegistry = &ExchangeMetrics{
			rateFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "exchange_rate_fetch_total",
				Help: "Price feed fetch attempts by asset and result.",
			}, []string{"asset", "result"}),
			quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "exchange_quotes_total",
				Help: "Computed quotes by action and asset.",
			}, []string{"action", "asset"}),
			ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "exchange_orders_created_total",
				Help: "Orders created by action and asset.",
			}, []string{"action", "asset"}),
			orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "exchange_order_transitions_total",
				Help: "Order status transitions by target status and outcome.",
			}, []string{"status", "outcome"}),
			relayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "exchange_relay_messages_total",
				Help: "Messages relayed between users and operators by direction.",
			}, []string{"direction"}),
			lotteryPlays: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "exchange_lottery_plays_total",
				Help: "Lottery draws paid out.",
			}),
			broadcastDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "exchange_broadcast_deliveries_total",
				Help: "Broadcast deliveries by result.",
			}, []string{"result"}),
			activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "exchange_active_sessions",
				Help: "Conversation sessions held by the in-memory store.",
			}),
		}
		prometheus.MustRegister(
			exchangeRegistry.rateFetches,
			exchangeRegistry.quotes,
			exchangeRegistry.ordersCreated,
			exchangeRegistry.orderTransitions,
			exchangeRegistry.relayMessages,
			exchangeRegistry.lotteryPlays,
			exchangeRegistry.broadcastDelivered,
			exchangeRegistry.activeSessions,
		)
	})
	return exchangeRegistry
}

func (m *ExchangeMetrics) ObserveRateFetch(asset, result string) {
	if m == nil {
		return
	}
	m.rateFetches.WithLabelValues(asset, result).Inc()
}

func (m *ExchangeMetrics) ObserveQuote(action, asset string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(action, asset).Inc()
}

func (m *ExchangeMetrics) ObserveOrderCreated(action, asset string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(action, asset).Inc()
}

// ObserveTransition records a status transition; outcome is "applied" or "noop".
func (m *ExchangeMetrics) ObserveTransition(status, outcome string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(status, outcome).Inc()
}

func (m *ExchangeMetrics) ObserveRelay(direction string) {
	if m == nil {
		return
	}
	m.relayMessages.WithLabelValues(direction).Inc()
}

func (m *ExchangeMetrics) ObserveLotteryPlay() {
	if m == nil {
		return
	}
	m.lotteryPlays.Inc()
}

func (m *ExchangeMetrics) ObserveBroadcast(result string) {
	if m == nil {
		return
	}
	m.broadcastDelivered.WithLabelValues(result).Inc()
}

func (m *ExchangeMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
