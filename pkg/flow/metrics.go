package flow

import (
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of runner counters
type Metrics struct {
	Runs           int64
	StepsProcessed int64
	StepsFailed    int64
	StepsSkipped   int64
	StepTimeNs     int64
}

// AverageStepTime returns the mean duration of executed steps.
func (m Metrics) AverageStepTime() time.Duration {
	executed := m.StepsProcessed + m.StepsFailed
	if executed == 0 {
		return 0
	}
	return time.Duration(m.StepTimeNs / executed)
}

// ErrorRate returns failed steps as a percentage of executed steps.
func (m Metrics) ErrorRate() float64 {
	executed := m.StepsProcessed + m.StepsFailed
	if executed == 0 {
		return 0
	}
	return float64(m.StepsFailed) / float64(executed) * 100
}

type metricsCollector struct {
	runs      atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	stepTime  atomic.Int64
}

func (m *metricsCollector) recordRun() {
	m.runs.Add(1)
}

func (m *metricsCollector) recordStep(d time.Duration, err error) {
	m.stepTime.Add(d.Nanoseconds())
	if err != nil {
		m.failed.Add(1)
		return
	}
	m.processed.Add(1)
}

func (m *metricsCollector) recordSkipped() {
	m.skipped.Add(1)
}

func (m *metricsCollector) snapshot() Metrics {
	return Metrics{
		Runs:           m.runs.Load(),
		StepsProcessed: m.processed.Load(),
		StepsFailed:    m.failed.Load(),
		StepsSkipped:   m.skipped.Load(),
		StepTimeNs:     m.stepTime.Load(),
	}
}

func (m *metricsCollector) reset() {
	m.runs.Store(0)
	m.processed.Store(0)
	m.failed.Store(0)
	m.skipped.Store(0)
	m.stepTime.Store(0)
}
