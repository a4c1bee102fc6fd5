package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/enums"
	"github.com/agritrade/agritrade-backend/pkg/logger"
)

const (
	outboxRetentionDays    = 30
	dlqRetentionDays       = 90
	outboxTerminalAttempts = 10
	outboxRetentionJobName = "outbox-retention"
)

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxRetentionRepo
	DeadLetters deadLetterRepo
	// Retention and DLQRetention are in days.
	Retention    int
	DLQRetention int
	// TerminalAttempts matches the publisher's max attempts; unpublished rows
	// at that count are parked for good.
	TerminalAttempts int
}

type outboxRetentionRepo interface {
	DeleteSettledBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

type deadLetterRepo interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	CountByReason(ctx context.Context, tx *gorm.DB) (map[enums.OutboxDLQErrorReason]int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		dlq:          params.DeadLetters,
		retention:    daysOr(params.Retention, outboxRetentionDays),
		dlqRetention: daysOr(params.DLQRetention, dlqRetentionDays),
		terminal:     daysOr(params.TerminalAttempts, outboxTerminalAttempts),
		now:          time.Now,
	}, nil
}

func daysOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// outboxRetentionJob trims delivered and parked outbox rows, then ages out
// dead letters on a longer window and reports what is left of them.
type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxRetentionRepo
	dlq          deadLetterRepo
	retention    int
	dlqRetention int
	terminal     int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return outboxRetentionJobName }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.AddDate(0, 0, -j.retention)
	dlqCutoff := now.AddDate(0, 0, -j.dlqRetention)

	var deleted, dlqDeleted int64
	var backlog map[enums.OutboxDLQErrorReason]int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if deleted, err = j.repo.DeleteSettledBefore(ctx, tx, cutoff, j.terminal); err != nil {
			return err
		}
		if j.dlq == nil {
			return nil
		}
		if dlqDeleted, err = j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
		backlog, err = j.dlq.CountByReason(ctx, tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	fields := map[string]any{
		"cutoff":            cutoff,
		"retention_days":    j.retention,
		"terminal_attempts": j.terminal,
		"rows_deleted":      deleted,
	}
	if j.dlq != nil {
		fields["dlq_cutoff"] = dlqCutoff
		fields["dlq_deleted"] = dlqDeleted
		fields["dlq_backlog"] = backlog
	}
	logCtx := j.logg.WithFields(ctx, fields)
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	if total := sumBacklog(backlog); total > 0 {
		j.logg.Warn(logCtx, fmt.Sprintf("%d outbox events parked in dead-letter queue", total))
	}
	return nil
}

func sumBacklog(backlog map[enums.OutboxDLQErrorReason]int64) int64 {
	var total int64
	for _, n := range backlog {
		total += n
	}
	return total
}
