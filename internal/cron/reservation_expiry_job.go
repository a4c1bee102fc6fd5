package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/logger"
)

const (
	defaultExpiryBatchSize = 200
	// maxExpiryBatches bounds one run so a backlog cannot hold the lock forever.
	maxExpiryBatches = 50
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reservationExpirer interface {
	ExpireDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) (int, error)
}

// ReservationExpiryJobParams configure the reservation reaper.
type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Ledger    reservationExpirer
	BatchSize int
	Now       func() time.Time
}

// NewReservationExpiryJob builds the job that expires lapsed stock holds.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("reservation ledger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &reservationExpiryJob{
		logg:   params.Logger,
		db:     params.DB,
		ledger: params.Ledger,
		batch:  batch,
		now:    now,
	}, nil
}

type reservationExpiryJob struct {
	logg   *logger.Logger
	db     txRunner
	ledger reservationExpirer
	batch  int
	now    func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

// Run expires due reservations batch by batch. Each batch commits on its own;
// rows that fail are reported together once the run ends.
func (j *reservationExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	var (
		total   int
		batches int
		errs    error
	)
	for batches < maxExpiryBatches {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		batches++
		var (
			expired  int
			batchErr error
		)
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			expired, batchErr = j.ledger.ExpireDue(ctx, tx, cutoff, j.batch)
			return nil
		})
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("reservation expiry batch: %w", err))
		}
		total += expired
		errs = multierr.Append(errs, batchErr)
		if batchErr != nil || expired < j.batch {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": total,
		"batches": batches,
		"failed":  len(multierr.Errors(errs)),
	})
	if errs != nil {
		j.logg.Warn(logCtx, "reservation expiry finished with failures")
		return fmt.Errorf("reservation expiry: %w", errs)
	}
	j.logg.Info(logCtx, "reservation expiry complete")
	return nil
}
