package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agritrade/agritrade-backend/pkg/logger"
	"github.com/agritrade/agritrade-backend/pkg/metrics"
)

type fakeLock struct {
	acquired   bool
	acquireErr error
	releases   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	success := &testJob{name: "reservation-expiry"}
	failure := &testJob{name: "outbox-retention", err: errors.New("boom")}
	lock := &fakeLock{}
	service := newTestService(t, lock, reg, success, failure)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job to run once, got %d and %d", success.runs, failure.runs)
	}
	if lock.releases != 1 || lock.acquired {
		t.Fatalf("expected lock released once, releases=%d held=%v", lock.releases, lock.acquired)
	}
	if got := service.metrics.Successes("reservation-expiry"); got != 1 {
		t.Fatalf("expected one success, got %v", got)
	}
	if got := service.metrics.Failures("outbox-retention"); got != 1 {
		t.Fatalf("expected one failure, got %v", got)
	}
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &testJob{name: "reservation-expiry"}
	lock := &fakeLock{acquired: true}
	service := newTestService(t, lock, nil, job)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("expected no release for a lock we never owned")
	}
}

func TestRunOnceSurfacesLockErrors(t *testing.T) {
	job := &testJob{name: "reservation-expiry"}
	service := newTestService(t, &fakeLock{acquireErr: errors.New("redis down")}, nil, job)

	if err := service.RunOnce(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d", job.runs)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "reservation-expiry"}
	service := newTestService(t, &fakeLock{}, nil, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected canceled cycle to skip jobs, ran %d", job.runs)
	}
}

type blockingJob struct{ err error }

func (b *blockingJob) Name() string { return "reservation-expiry" }

func (b *blockingJob) Run(ctx context.Context) error {
	<-ctx.Done()
	b.err = ctx.Err()
	return b.err
}

func TestRunOnceBoundsEachJob(t *testing.T) {
	job := &blockingJob{}
	service := newTestService(t, &fakeLock{}, prometheus.NewRegistry(), job)
	service.jobTimeout = 10 * time.Millisecond

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !errors.Is(job.err, context.DeadlineExceeded) {
		t.Fatalf("expected job to hit its deadline, got %v", job.err)
	}
	if got := service.metrics.Failures("reservation-expiry"); got != 1 {
		t.Fatalf("timed out job should count as failure, got %v", got)
	}
}
