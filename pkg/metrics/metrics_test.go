package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, ProcessStarts)
	assert.NotNil(t, SpawnFailures)
	assert.NotNil(t, ProcessExits)
	assert.NotNil(t, SweptProcesses)
	assert.NotNil(t, OutputLines)
	assert.NotNil(t, OverlongLines)
	assert.NotNil(t, TailRecords)
	assert.NotNil(t, TailDecodeErrors)
	assert.NotNil(t, TailBytes)
	assert.NotNil(t, SinkDrops)
	assert.NotNil(t, RunningSlots)
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(SinkDrops.WithLabelValues("test.topic"))
	SinkDrops.WithLabelValues("test.topic").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SinkDrops.WithLabelValues("test.topic")))
}
