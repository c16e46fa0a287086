package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplerCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewSampler(reg)
	require.NoError(t, err)

	s.Proposal("birth", true)
	s.Proposal("birth", false)
	s.Proposal("value", true)
	s.Exchange()
	s.Chain(2, 12.5, 7, 1.1)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.proposals.WithLabelValues("birth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.accepts.WithLabelValues("birth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.accepts.WithLabelValues("value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.exchanges))
	assert.Equal(t, 12.5, testutil.ToFloat64(s.likelihood.WithLabelValues("2")))
	assert.Equal(t, 7.0, testutil.ToFloat64(s.coefficients.WithLabelValues("2")))

	_, err = NewSampler(reg)
	assert.Error(t, err)
}

func TestNilSampler(t *testing.T) {
	var s *Sampler
	assert.NotPanics(t, func() {
		s.Proposal("death", true)
		s.Exchange()
		s.Chain(0, 1, 1, 1)
	})
}
