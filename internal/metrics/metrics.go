// Package metrics exposes exchange activity as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"liquidityEngine/internal/exchange"
	"liquidityEngine/internal/units"
)

const namespace = "amm"

// Metrics records exchange receipts. It implements exchange.Observer.
type Metrics struct {
	OpsTotal    *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	EventsTotal *prometheus.CounterVec
	SwapVolume  *prometheus.CounterVec
	Reserves    *prometheus.GaugeVec
	ShareSupply *prometheus.GaugeVec
	LastSeq     prometheus.Gauge

	decimals uint8
}

// New registers the exchange collectors on reg. Amounts are reported in
// whole units scaled down by decimals.
func New(reg prometheus.Registerer, decimals uint8) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "operations_total",
			Help:      "Exchange operations by name and outcome.",
		}, []string{"op", "status"}),
		OpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "operation_duration_seconds",
			Help:      "Time spent executing an exchange operation.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"op"}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "events_total",
			Help:      "Committed pool events by kind.",
		}, []string{"pool", "kind"}),
		SwapVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "swap_volume_total",
			Help:      "Swap input volume by pool and asset side.",
		}, []string{"pool", "asset"}),
		Reserves: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reserve",
			Help:      "Current pool reserve by asset side.",
		}, []string{"pool", "symbol", "asset"}),
		ShareSupply: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "share_supply",
			Help:      "Outstanding liquidity shares.",
		}, []string{"pool", "symbol"}),
		LastSeq: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "last_sequence",
			Help:      "Sequence number of the last executed operation.",
		}),
		decimals: decimals,
	}
}

// Observe counts the receipt and refreshes the gauges of the pools it touched.
func (m *Metrics) Observe(r exchange.Receipt) {
	status := "ok"
	if r.Err != nil {
		status = "reverted"
	}
	m.OpsTotal.WithLabelValues(r.Op, status).Inc()
	m.OpDuration.WithLabelValues(r.Op).Observe(r.Duration.Seconds())
	m.LastSeq.Set(float64(r.Seq))

	for _, ev := range r.Events {
		pool := ev.Pool.Hex()
		m.EventsTotal.WithLabelValues(pool, string(ev.Kind)).Inc()
		switch ev.Kind {
		case exchange.EventTokenPurchase:
			m.SwapVolume.WithLabelValues(pool, "base").Add(units.Decimal(ev.BaseAmount, m.decimals).InexactFloat64())
		case exchange.EventEthPurchase:
			m.SwapVolume.WithLabelValues(pool, "token").Add(units.Decimal(ev.TokenAmount, m.decimals).InexactFloat64())
		}
	}
	m.SetPools(r.Pools)
}

// SetPools refreshes the reserve and share gauges.
func (m *Metrics) SetPools(pools []exchange.PoolSnapshot) {
	for _, p := range pools {
		pool := p.Address.Hex()
		m.Reserves.WithLabelValues(pool, p.Symbol, "token").Set(units.Decimal(p.TokenReserve, m.decimals).InexactFloat64())
		m.Reserves.WithLabelValues(pool, p.Symbol, "base").Set(units.Decimal(p.BaseReserve, m.decimals).InexactFloat64())
		m.ShareSupply.WithLabelValues(pool, p.Symbol).Set(units.Decimal(p.ShareSupply, m.decimals).InexactFloat64())
	}
}

// OpTotals gathers g and sums the operation counter by status.
func OpTotals(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	name := prometheus.BuildFQName(namespace, "exchange", "operations_total")
	totals := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "status" {
					totals[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	return totals, nil
}
