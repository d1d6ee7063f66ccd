package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	Deposits           Counter
	Redemptions        Counter
	Sponsors           Counter
	OperationsFailed   Counter
	ReentrancyRejected Counter
	LossesAbsorbed     Counter

	TotalAssets   Gauge
	TotalSupply   Gauge
	PricePerShare Gauge
	Float         Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		Deposits:           n,
		Redemptions:        n,
		Sponsors:           n,
		OperationsFailed:   n,
		ReentrancyRejected: n,
		LossesAbsorbed:     n,
		TotalAssets:        g,
		TotalSupply:        g,
		PricePerShare:      g,
		Float:              g,
	}
}
