package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStopwatch(t *testing.T) {
	sw := NewStopwatch()
	time.Sleep(5 * time.Millisecond)

	d := sw.ObserveResolution()

	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(ResolutionSeconds))
}

func TestCountersAreRegistered(t *testing.T) {
	UtterancesMatched.WithLabelValues("Converse").Inc()
	got := testutil.ToFloat64(UtterancesMatched.WithLabelValues("Converse"))
	assert.GreaterOrEqual(t, got, 1.0)
}
