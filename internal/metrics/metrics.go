package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aeminvert"

// Sampler exports chain progress. A nil *Sampler is valid and records
// nothing.
type Sampler struct {
	proposals    *prometheus.CounterVec
	accepts      *prometheus.CounterVec
	exchanges    prometheus.Counter
	likelihood   *prometheus.GaugeVec
	coefficients *prometheus.GaugeVec
	lambda       *prometheus.GaugeVec
}

// NewSampler creates the collectors and registers them on reg.
func NewSampler(reg prometheus.Registerer) (*Sampler, error) {
	s := &Sampler{
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_total",
			Help:      "Proposals made, by move.",
		}, []string{"move"}),
		accepts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepts_total",
			Help:      "Proposals accepted, by move.",
		}, []string{"move"}),
		exchanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Accepted parallel tempering exchanges.",
		}),
		likelihood: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "likelihood",
			Help:      "Current negative log-likelihood of each chain.",
		}, []string{"chain"}),
		coefficients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coefficients",
			Help:      "Active wavelet coefficients of each chain.",
		}, []string{"chain"}),
		lambda: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lambda",
			Help:      "Noise scale of each chain.",
		}, []string{"chain"}),
	}
	for _, c := range []prometheus.Collector{s.proposals, s.accepts, s.exchanges, s.likelihood, s.coefficients, s.lambda} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sampler) Proposal(move string, accepted bool) {
	if s == nil {
		return
	}
	s.proposals.WithLabelValues(move).Inc()
	if accepted {
		s.accepts.WithLabelValues(move).Inc()
	}
}

func (s *Sampler) Exchange() {
	if s == nil {
		return
	}
	s.exchanges.Inc()
}

// Chain records the current state of one chain.
func (s *Sampler) Chain(chain int, nll float64, k int, lambda float64) {
	if s == nil {
		return
	}
	id := strconv.Itoa(chain)
	s.likelihood.WithLabelValues(id).Set(nll)
	s.coefficients.WithLabelValues(id).Set(float64(k))
	s.lambda.WithLabelValues(id).Set(lambda)
}
