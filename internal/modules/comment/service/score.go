package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/modules/comment/repository"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	pendingScoresKey = "pending:comment_scores"
	scoreBatch       = 100
	// z for a 95% confidence interval.
	wilsonZ = 1.96
)

// ScoreWorker keeps comments.score in step with the votes. Vote writes queue
// the comment id in Redis and the worker recomputes queued scores on each
// tick. Without Redis scores are recomputed inline.
type ScoreWorker interface {
	Queue(ctx context.Context, commentID int64)
	Sync(ctx context.Context) (int, error)
	Run(ctx context.Context, interval time.Duration)
}

type scoreWorker struct {
	repo        repository.CommentRepository
	redisClient *redis.Client
	log         zerolog.Logger
}

func NewScoreWorker(repo repository.CommentRepository, redisClient *redis.Client, log zerolog.Logger) ScoreWorker {
	return &scoreWorker{repo: repo, redisClient: redisClient, log: log}
}

func (w *scoreWorker) Queue(ctx context.Context, commentID int64) {
	if w.redisClient != nil {
		err := w.redisClient.SAdd(ctx, pendingScoresKey, strconv.FormatInt(commentID, 10)).Err()
		if err == nil {
			return
		}
		w.log.Warn().Err(err).Int64("comment_id", commentID).Msg("failed to queue comment score, recomputing inline")
	}
	if err := w.recompute(ctx, commentID); err != nil {
		w.log.Error().Err(err).Int64("comment_id", commentID).Msg("failed to recompute comment score")
	}
}

// Sync drains the queue and returns how many scores were written.
func (w *scoreWorker) Sync(ctx context.Context) (int, error) {
	if w.redisClient == nil {
		return 0, nil
	}

	synced := 0
	for {
		ids, err := w.redisClient.SPopN(ctx, pendingScoresKey, scoreBatch).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return synced, err
		}
		if len(ids) == 0 {
			return synced, nil
		}

		for _, raw := range ids {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				w.log.Warn().Str("value", raw).Msg("dropping malformed comment id")
				continue
			}
			err = w.recompute(ctx, id)
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			if err != nil {
				// Requeue so the next tick retries.
				w.redisClient.SAdd(ctx, pendingScoresKey, raw)
				return synced, err
			}
			synced++
		}
	}
}

func (w *scoreWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := w.Sync(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("comment score sync failed")
			}
			if n > 0 {
				w.log.Debug().Int("comments", n).Msg("synced comment scores")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *scoreWorker) recompute(ctx context.Context, commentID int64) error {
	if _, err := w.repo.FindByID(ctx, commentID); err != nil {
		return err
	}
	up, down, err := w.repo.CountVotes(ctx, commentID)
	if err != nil {
		return err
	}
	return w.repo.UpdateScore(ctx, commentID, WilsonScore(up, down))
}

// WilsonScore is the lower bound of the Wilson score interval for the share
// of up votes, rounded to the 10 fractional digits the column holds.
func WilsonScore(up, down int64) decimal.Decimal {
	n := float64(up + down)
	if n == 0 {
		return decimal.Zero
	}
	p := float64(up) / n
	z2 := wilsonZ * wilsonZ
	lower := (p + z2/(2*n) - wilsonZ*math.Sqrt((p*(1-p)+z2/(4*n))/n)) / (1 + z2/n)
	if lower < 0 {
		lower = 0
	}
	return decimal.NewFromFloat(lower).Round(10)
}
