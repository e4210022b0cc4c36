package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/upi-wallet/internal/observability"
	"github.com/ayo6706/upi-wallet/internal/service"
	"go.uber.org/zap"
)

const reconciliationJob = "reconciliation"

// Reconciler performs one ledger check.
type Reconciler interface {
	Run(ctx context.Context) (service.ReconciliationReport, error)
}

// ReconciliationWorker periodically checks that the wallet ledger still conserves money.
type ReconciliationWorker struct {
	reconciler Reconciler
	interval   time.Duration
	// runTimeout bounds a single check so a stuck query cannot stall the loop.
	runTimeout time.Duration

	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once
}

func NewReconciliationWorker(reconciler Reconciler) *ReconciliationWorker {
	return &ReconciliationWorker{
		reconciler: reconciler,
		interval:   time.Hour,
		runTimeout: 30 * time.Second,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// WithInterval sets the pause between checks. Non-positive values are ignored.
func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start checks the ledger immediately and then on every tick until ctx ends or Stop is called.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.check(ctx)
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reconciliation worker exiting", zap.String("reason", "context done"))
			return
		case <-w.quit:
			zap.L().Info("reconciliation worker exiting", zap.String("reason", "stopped"))
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (w *ReconciliationWorker) Stop() {
	w.quitOnce.Do(func() { close(w.quit) })
}

// Run starts the loop in the background. The returned func stops it and waits
// for an in-flight check to finish.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return func() {
		w.Stop()
		<-w.done
	}
}

func (w *ReconciliationWorker) check(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	report, err := w.reconciler.Run(runCtx)
	switch {
	case err != nil:
		observability.IncrementWorkerRun(reconciliationJob, "failed")
		zap.L().Error("ledger reconciliation failed", zap.Error(err))
	case !report.Balanced():
		observability.IncrementWorkerRun(reconciliationJob, "imbalanced")
		zap.L().Error("ledger reconciliation found drift",
			zap.Int64("accounts", report.Accounts),
			zap.String("drift", (report.TotalBalance-report.TotalOpening).String()),
			zap.Int64("negative_balances", report.NegativeBalances),
		)
	default:
		observability.IncrementWorkerRun(reconciliationJob, "success")
		zap.L().Debug("ledger reconciliation passed",
			zap.Int64("accounts", report.Accounts),
			zap.String("total_balance", report.TotalBalance.String()),
		)
	}
}
