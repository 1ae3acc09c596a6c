package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	calls atomic.Int32
	batch atomic.Int32
	err   error
}

func (p *countingProcessor) ProcessWithdrawals(_ context.Context, batchSize int32) error {
	p.calls.Add(1)
	p.batch.Store(batchSize)
	return p.err
}

func TestWithdrawalWorkerPolls(t *testing.T) {
	p := &countingProcessor{}
	w := NewWithdrawalWorker(p).WithPollInterval(5 * time.Millisecond).WithBatchSize(7)

	stop := w.Run(context.Background())
	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	stop()
	stop() // idempotent

	assert.Equal(t, int32(7), p.batch.Load())
	assert.Equal(t, "WithdrawalWorker(interval=5ms, batch=7)", w.String())
}

func TestWithdrawalWorkerProcessOnceReturnsError(t *testing.T) {
	p := &countingProcessor{err: errors.New("boom")}
	w := NewWithdrawalWorker(p)
	require.Error(t, w.ProcessOnce(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())
}

type stubReconciler struct {
	calls      atomic.Int32
	mismatches []models.BalanceMismatch
}

func (r *stubReconciler) Run(context.Context) ([]models.BalanceMismatch, error) {
	r.calls.Add(1)
	return r.mismatches, nil
}

func TestReconciliationWorkerRunsImmediately(t *testing.T) {
	r := &stubReconciler{mismatches: []models.BalanceMismatch{{AccountID: uuid.New(), Balance: 5, Expected: 4}}}
	w := NewReconciliationWorker(r).WithInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, w.RunOnce(context.Background()))
}
