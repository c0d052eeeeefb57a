package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 收集拍賣結算相關的指標
// 所有方法在 nil receiver 上都是 no-op，方便在測試中省略
type Metrics struct {
	finalizations *prometheus.CounterVec
	sweepClosed   prometheus.Counter
	bids          *prometheus.CounterVec
	extensions    prometheus.Counter
	timers        prometheus.Gauge
}

// New 建立並註冊指標，reg 為 nil 時使用 prometheus.DefaultRegisterer
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		finalizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_finalizations_total",
				Help: "Auction finalization attempts by trigger and outcome.",
			},
			[]string{"trigger", "outcome"},
		),
		sweepClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auction_sweep_closed_total",
			Help: "Auctions closed by the reconciliation sweep.",
		}),
		bids: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_bids_total",
				Help: "Bid placement attempts by result.",
			},
			[]string{"result"},
		),
		extensions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auction_extensions_total",
			Help: "End time extensions caused by late bids.",
		}),
		timers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auction_live_timers",
			Help: "Auction close timers currently scheduled in this process.",
		}),
	}
	reg.MustRegister(m.finalizations, m.sweepClosed, m.bids, m.extensions, m.timers)
	return m
}

func (m *Metrics) ObserveFinalization(trigger, outcome string) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) AddSweepClosed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepClosed.Add(float64(n))
}

func (m *Metrics) ObserveBid(result string) {
	if m == nil {
		return
	}
	m.bids.WithLabelValues(result).Inc()
}

func (m *Metrics) IncExtensions() {
	if m == nil {
		return
	}
	m.extensions.Inc()
}

func (m *Metrics) SetTimers(n int) {
	if m == nil {
		return
	}
	m.timers.Set(float64(n))
}
