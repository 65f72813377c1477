package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"starblog/internal/common"
	"starblog/internal/domain/model"
	"starblog/internal/domain/repository"
	"starblog/internal/platform/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RatingEventPublisher receives a job after each committed rating.
type RatingEventPublisher interface {
	PublishRatingRecorded(ctx context.Context, job model.RatingAuditJob) error
}

const publishTimeout = time.Second

type RatingService struct {
	ratingRepo repository.RatingRepository
	events     RatingEventPublisher // optional
	log        *zap.Logger
	now        func() time.Time
}

func NewRatingService(ratingRepo repository.RatingRepository, events RatingEventPublisher, log *zap.Logger) *RatingService {
	return &RatingService{ratingRepo: ratingRepo, events: events, log: log, now: time.Now}
}

// Rate records rater's rating of postID and returns the post's new average.
func (s *RatingService) Rate(ctx context.Context, postID string, rater *model.User, value int) (float64, error) {
	if !model.ValidRating(value) {
		metrics.RatingsRecordedTotal.WithLabelValues("invalid").Inc()
		return 0, common.ErrInvalidRating
	}
	if !validPostID(postID) {
		metrics.RatingsRecordedTotal.WithLabelValues("not_found").Inc()
		return 0, common.ErrPostNotFound
	}

	rating := &model.Rating{
		ID:     uuid.NewString(),
		PostID: postID,
		UserID: rater.ID,
		Value:  value,
	}
	average, err := s.ratingRepo.RecordRating(ctx, rating)
	if err != nil {
		metrics.RatingsRecordedTotal.WithLabelValues(ratingOutcome(err)).Inc()
		return 0, fmt.Errorf("failed to record rating: %w", err)
	}
	metrics.RatingsRecordedTotal.WithLabelValues("recorded").Inc()

	s.log.Info("rating recorded",
		zap.String("post_id", postID),
		zap.String("user_id", rater.ID),
		zap.Int("value", value),
		zap.Float64("average", average),
	)
	s.publish(ctx, rating)
	return average, nil
}

// GetAverage returns the stored average without recomputing it.
func (s *RatingService) GetAverage(ctx context.Context, postID string) (float64, error) {
	if !validPostID(postID) {
		return 0, common.ErrPostNotFound
	}
	average, err := s.ratingRepo.GetAverage(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("failed to get average rating: %w", err)
	}
	return average, nil
}

// publish is best effort; the rating is already committed.
func (s *RatingService) publish(ctx context.Context, rating *model.Rating) {
	if s.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	job := model.RatingAuditJob{PostID: rating.PostID, RatingID: rating.ID, EnqueuedAt: s.now().UTC()}
	if err := s.events.PublishRatingRecorded(pubCtx, job); err != nil {
		s.log.Warn("failed to enqueue rating audit", zap.String("post_id", rating.PostID), zap.Error(err))
	}
}

func ratingOutcome(err error) string {
	switch {
	case errors.Is(err, common.ErrAlreadyRated):
		return "duplicate"
	case errors.Is(err, common.ErrPostNotFound):
		return "not_found"
	case errors.Is(err, common.ErrTransientStorage):
		return "transient"
	default:
		return "error"
	}
}
