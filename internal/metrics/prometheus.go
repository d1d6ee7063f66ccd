package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "yield_vault"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	deposits      prometheus.Counter
	redemptions   prometheus.Counter
	sponsors      prometheus.Counter
	failed        prometheus.Counter
	reentrant     prometheus.Counter
	lossAbsorbed  prometheus.Counter
	totalAssets   prometheus.Gauge
	totalSupply   prometheus.Gauge
	pricePerShare prometheus.Gauge
	float         prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry:      registry,
		deposits:      newCounter("deposits_total", "Total number of committed deposits."),
		redemptions:   newCounter("redemptions_total", "Total number of committed redemptions."),
		sponsors:      newCounter("sponsorships_total", "Total number of committed sponsorships."),
		failed:        newCounter("operations_failed_total", "Total number of rejected or rolled back operations."),
		reentrant:     newCounter("reentrancy_rejected_total", "Total number of re-entrant calls rejected."),
		lossAbsorbed:  newCounter("losses_absorbed_total", "Total number of redemptions that absorbed a strategy loss."),
		totalAssets:   newGauge("total_assets", "Float plus deployed value, in asset base units."),
		totalSupply:   newGauge("total_supply", "Outstanding shares."),
		pricePerShare: newGauge("price_per_share", "Asset value of one whole share, in asset base units."),
		float:         newGauge("float", "Undeployed asset held by the vault, in base units."),
	}
	registry.MustRegister(
		p.deposits, p.redemptions, p.sponsors, p.failed, p.reentrant, p.lossAbsorbed,
		p.totalAssets, p.totalSupply, p.pricePerShare, p.float,
	)
	p.Metrics = &Metrics{
		Deposits:           promCounter{p.deposits},
		Redemptions:        promCounter{p.redemptions},
		Sponsors:           promCounter{p.sponsors},
		OperationsFailed:   promCounter{p.failed},
		ReentrancyRejected: promCounter{p.reentrant},
		LossesAbsorbed:     promCounter{p.lossAbsorbed},
		TotalAssets:        promGauge{p.totalAssets},
		TotalSupply:        promGauge{p.totalSupply},
		PricePerShare:      promGauge{p.pricePerShare},
		Float:              promGauge{p.float},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
