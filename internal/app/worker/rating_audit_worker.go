package worker

import (
	"context"
	"errors"
	"time"

	"starblog/internal/domain/model"
	"starblog/internal/domain/repository"
	"starblog/internal/platform/metrics"

	"go.uber.org/zap"
)

// AuditQueue is the consumer side of the rating audit queue.
type AuditQueue interface {
	Next(ctx context.Context, timeout time.Duration) (*model.RatingAuditJob, error)
	Requeue(ctx context.Context, job model.RatingAuditJob) error
}

// Locker serializes audits across replicas.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) (bool, error), ok bool, err error)
}

// RatingAuditWorker re-derives a post's average from its ratings after each
// rating and repairs the cached column if the two disagree.
type RatingAuditWorker struct {
	queue      AuditQueue
	locker     Locker
	ratingRepo repository.RatingRepository
	log        *zap.Logger

	popTimeout time.Duration
	retryDelay time.Duration
}

func NewRatingAuditWorker(queue AuditQueue, locker Locker, ratingRepo repository.RatingRepository, popTimeout time.Duration, log *zap.Logger) *RatingAuditWorker {
	return &RatingAuditWorker{
		queue:      queue,
		locker:     locker,
		ratingRepo: ratingRepo,
		log:        log,
		popTimeout: popTimeout,
		retryDelay: 5 * time.Second,
	}
}

// Start runs until ctx is canceled.
func (w *RatingAuditWorker) Start(ctx context.Context) {
	w.log.Info("rating audit worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("rating audit worker stopping")
			return
		default:
		}

		job, err := w.queue.Next(ctx, w.popTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.log.Error("failed to pop audit job", zap.Error(err))
			w.sleep(ctx, w.retryDelay)
			continue
		}
		if job == nil {
			continue
		}
		w.processWithLock(ctx, *job)
	}
}

func (w *RatingAuditWorker) processWithLock(ctx context.Context, job model.RatingAuditJob) {
	release, ok, err := w.locker.Acquire(ctx)
	if err != nil {
		w.log.Error("failed to attempt audit lock", zap.String("post_id", job.PostID), zap.Error(err))
		w.requeue(ctx, job)
		return
	}
	if !ok {
		w.log.Debug("audit lock busy, re-queueing", zap.String("post_id", job.PostID))
		w.requeue(ctx, job)
		return
	}

	defer func() {
		released, err := release(context.WithoutCancel(ctx))
		if err != nil {
			w.log.Error("failed to release audit lock", zap.String("post_id", job.PostID), zap.Error(err))
		} else if !released {
			w.log.Warn("audit lock expired before release", zap.String("post_id", job.PostID))
		}
	}()

	w.Process(ctx, job)
}

// Process audits a single post.
func (w *RatingAuditWorker) Process(ctx context.Context, job model.RatingAuditJob) *model.RatingAuditResult {
	result, err := w.ratingRepo.Reconcile(ctx, job.PostID)
	if err != nil {
		metrics.RatingAuditsTotal.WithLabelValues("error").Inc()
		w.log.Error("rating audit failed", zap.String("post_id", job.PostID), zap.Error(err))
		return nil
	}
	metrics.RatingAuditsTotal.WithLabelValues(result.Status).Inc()

	fields := []zap.Field{
		zap.String("post_id", result.PostID),
		zap.Float64("stored", result.Stored),
		zap.Float64("expected", result.Expected),
		zap.Int("count", result.Count),
		zap.Duration("lag", time.Since(job.EnqueuedAt)),
	}
	switch result.Status {
	case model.AuditStatusRepaired:
		w.log.Warn("repaired drifted post rating", fields...)
	case model.AuditStatusMissing:
		w.log.Info("audited post no longer exists", fields...)
	default:
		w.log.Debug("post rating consistent", fields...)
	}
	return result
}

func (w *RatingAuditWorker) requeue(ctx context.Context, job model.RatingAuditJob) {
	if err := w.queue.Requeue(context.WithoutCancel(ctx), job); err != nil {
		w.log.Error("failed to re-queue audit job", zap.String("post_id", job.PostID), zap.Error(err))
		return
	}
	w.sleep(ctx, w.retryDelay)
}

func (w *RatingAuditWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
