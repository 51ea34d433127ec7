package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSamplesCollectedByResult(t *testing.T) {
	before := testutil.ToFloat64(SamplesCollected.WithLabelValues(ResultFailure))
	SamplesCollected.WithLabelValues(ResultFailure).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SamplesCollected.WithLabelValues(ResultFailure)))
}

func TestRetrainingRunsOutcomeLabels(t *testing.T) {
	for _, outcome := range []string{"updated", "regression", "insufficient", "failed", "busy"} {
		RetrainingRuns.WithLabelValues(outcome).Inc()
	}
	assert.Equal(t, 5, testutil.CollectAndCount(RetrainingRuns))
}
