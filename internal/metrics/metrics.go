// Package metrics exposes the Prometheus collectors updated by the copy
// bots during operation:
//   - copybot_trades_opened_total{mode}     – trades opened (mode: paper|production)
//   - copybot_events_skipped_total{reason}  – activity events not copied, by reason
//   - copybot_trades_closed_total{reason}   – trades closed (manual|stop_loss|source_exit)
//   - copybot_suspensions_total             – daily-loss-limit suspensions
//   - copybot_paper_wallet_balance{bot_id}  – current paper wallet balance (gauge)
//
// Collectors are registered in init() and served at /metrics by the web
// server in the Prometheus text exposition format.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TradesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copybot_trades_opened_total",
			Help: "Trades opened by copy bots",
		},
		[]string{"mode"},
	)

	// Reasons are things like duplicate, not_buy, below_minimum, insufficient_balance.
	EventsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copybot_events_skipped_total",
			Help: "Activity events skipped, split by reason",
		},
		[]string{"reason"},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copybot_trades_closed_total",
			Help: "Trades closed, split by reason",
		},
		[]string{"reason"},
	)

	Suspensions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "copybot_suspensions_total",
			Help: "Bots suspended by the daily loss limit",
		},
	)

	PaperWalletBalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "copybot_paper_wallet_balance",
			Help: "Current paper wallet balance per bot",
		},
		[]string{"bot_id"},
	)
)

func init() {
	prometheus.MustRegister(
		TradesOpened,
		EventsSkipped,
		TradesClosed,
		Suspensions,
		PaperWalletBalance,
	)
}
