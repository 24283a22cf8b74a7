package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"offramp.backend/internal/usecases"
)

type refresherStub struct {
	calls atomic.Int32
	limit int
	err   error
}

func (s *refresherStub) RefreshPending(_ context.Context, limit int) (int, error) {
	s.calls.Add(1)
	s.limit = limit
	return 3, s.err
}

type sweeperStub struct {
	calls   int
	results []usecases.SweepResult
	err     error
}

func (s *sweeperStub) SweepConfirmed(_ context.Context, _ int) ([]usecases.SweepResult, error) {
	s.calls++
	return s.results, s.err
}

type reconcilerStub struct {
	calls int
	err   error
}

func (s *reconcilerStub) Reconcile(_ context.Context) (usecases.ReconcileSummary, error) {
	s.calls++
	return usecases.ReconcileSummary{Checked: 2, Updated: 1, Skipped: 1}, s.err
}

type expirerStub struct {
	calls int
	limit int
	err   error
}

func (s *expirerStub) ExpireStale(_ context.Context, limit int) (int64, error) {
	s.calls++
	s.limit = limit
	return 4, s.err
}

func TestDepositConfirmationJob_Process(t *testing.T) {
	stub := &refresherStub{}
	job := NewDepositConfirmationJob(stub, 0)

	job.process(context.Background())
	require.Equal(t, int32(1), stub.calls.Load())
	require.Equal(t, depositBatch, stub.limit)
	require.Equal(t, 15*time.Second, job.interval)

	stub.err = errors.New("db down")
	job.process(context.Background())
	require.Equal(t, int32(2), stub.calls.Load())
}

func TestSweepJob_Process(t *testing.T) {
	stub := &sweeperStub{results: []usecases.SweepResult{
		{Outcome: usecases.SweepOutcomeSubmitted},
		{Outcome: usecases.SweepOutcomeAwaitingGas},
	}}
	job := NewSweepJob(stub, time.Second, 0)
	require.Equal(t, 50, job.batch)

	job.process(context.Background())
	require.Equal(t, 1, stub.calls)

	stub.err = errors.New("list failed")
	job.process(context.Background())
	require.Equal(t, 2, stub.calls)
}

func TestPayoutReconcileJob_Process(t *testing.T) {
	stub := &reconcilerStub{}
	job := NewPayoutReconcileJob(stub, 0)

	job.process(context.Background())
	stub.err = errors.New("provider down")
	job.process(context.Background())
	require.Equal(t, 2, stub.calls)
	require.Equal(t, time.Minute, job.interval)
}

func TestQuoteExpiryJob_Process(t *testing.T) {
	stub := &expirerStub{}
	job := NewQuoteExpiryJob(stub, time.Second)

	job.process(context.Background())
	require.Equal(t, 1, stub.calls)
	require.Equal(t, quoteExpiryBatch, stub.limit)
}

func TestStartStop_StopsByContext(t *testing.T) {
	stub := &refresherStub{}
	job := NewDepositConfirmationJob(stub, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("job did not stop on context cancel")
	}
	require.Positive(t, stub.calls.Load())
}

func TestStartStop_StopsByStopChannel(t *testing.T) {
	job := NewQuoteExpiryJob(&expirerStub{}, time.Hour)

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()
	job.Stop()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("job did not stop on Stop()")
	}
}

func TestJobsSatisfyInterface(t *testing.T) {
	var _ Job = NewDepositConfirmationJob(&refresherStub{}, 0)
	var _ Job = NewSweepJob(&sweeperStub{}, 0, 0)
	var _ Job = NewPayoutReconcileJob(&reconcilerStub{}, 0)
	var _ Job = NewQuoteExpiryJob(&expirerStub{}, 0)
}
