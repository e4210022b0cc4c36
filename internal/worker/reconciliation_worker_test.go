package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/upi-wallet/internal/service"
	"github.com/stretchr/testify/assert"
)

type countingReconciler struct {
	runs atomic.Int32
}

func (c *countingReconciler) Run(context.Context) (service.ReconciliationReport, error) {
	c.runs.Add(1)
	return service.ReconciliationReport{}, nil
}

func TestReconciliationWorkerRunsUntilStopped(t *testing.T) {
	rec := &countingReconciler{}
	w := NewReconciliationWorker(rec).WithInterval(5 * time.Millisecond)

	stop := w.Run(context.Background())
	assert.Eventually(t, func() bool { return rec.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	stop()
	stop()

	settled := rec.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, rec.runs.Load(), settled+1)
}

func TestReconciliationWorkerStopsOnContextCancel(t *testing.T) {
	rec := &countingReconciler{}
	w := NewReconciliationWorker(rec).WithInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return rec.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

type driftingReconciler struct {
	runs atomic.Int32
}

func (d *driftingReconciler) Run(ctx context.Context) (service.ReconciliationReport, error) {
	d.runs.Add(1)
	return service.ReconciliationReport{Accounts: 2, TotalBalance: 150, TotalOpening: 100}, nil
}

func TestReconciliationWorkerKeepsRunningOnDrift(t *testing.T) {
	rec := &driftingReconciler{}
	w := NewReconciliationWorker(rec).WithInterval(5 * time.Millisecond)

	stop := w.Run(context.Background())
	assert.Eventually(t, func() bool { return rec.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	stop()
}
