package service

import (
	"context"
	"log/slog"

	"pulsifi/internal/cache"
	"pulsifi/internal/models"
	"pulsifi/internal/observability"
	"pulsifi/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

type FollowService struct {
	store *repository.Store
}

func NewFollowService(store *repository.Store) *FollowService {
	return &FollowService{store: store}
}

// AddFollowing makes followerID follow every target. The whole batch fails if any edge is rejected.
func (s *FollowService) AddFollowing(ctx context.Context, followerID uint, targetIDs ...uint) error {
	edges := make([]models.Follow, 0, len(targetIDs))
	for _, id := range targetIDs {
		edges = append(edges, models.Follow{FollowerID: followerID, FollowedID: id})
	}
	if err := s.createEdges(ctx, edges); err != nil {
		return err
	}
	cache.BumpFeedVersion(ctx, followerID)
	return nil
}

// AddFollowers makes every follower follow userID.
func (s *FollowService) AddFollowers(ctx context.Context, userID uint, followerIDs ...uint) error {
	edges := make([]models.Follow, 0, len(followerIDs))
	for _, id := range followerIDs {
		edges = append(edges, models.Follow{FollowerID: id, FollowedID: userID})
	}
	if err := s.createEdges(ctx, edges); err != nil {
		return err
	}
	cache.BumpFeedVersion(ctx, followerIDs...)
	return nil
}

func (s *FollowService) createEdges(ctx context.Context, edges []models.Follow) error {
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		for i := range edges {
			if edges[i].FollowerID == edges[i].FollowedID {
				return models.NewIntegrityError(models.ConstraintNotFollowSelf, models.ErrSelfFollow)
			}
			if err := tx.Follows.Create(ctx, &edges[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Unfollow removes the edge and reports whether it existed.
func (s *FollowService) Unfollow(ctx context.Context, followerID, targetID uint) (bool, error) {
	removed, err := s.store.Follows.Delete(ctx, followerID, targetID)
	if err != nil {
		return false, err
	}
	if removed {
		cache.BumpFeedVersion(ctx, followerID)
	}
	return removed, nil
}

func (s *FollowService) Following(ctx context.Context, id uint) ([]models.User, error) {
	return s.store.Follows.Following(ctx, id)
}

func (s *FollowService) Followers(ctx context.Context, id uint) ([]models.User, error) {
	return s.store.Follows.Followers(ctx, id)
}

func (s *FollowService) IsFollowing(ctx context.Context, followerID, targetID uint) (bool, error) {
	return s.store.Follows.Exists(ctx, followerID, targetID)
}

// GetFeedPulses returns the pulses of the active users userID follows.
// Pages are cached per feed version, which changes whenever the user's follow set does.
func (s *FollowService) GetFeedPulses(ctx context.Context, userID uint, limit, offset int) ([]models.Pulse, error) {
	span, ctx := observability.NewSpan(ctx, "FollowService.GetFeedPulses")
	defer span.End()

	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.store.Users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	version := cache.FeedVersion(ctx, userID)
	span.AddAttributes(
		attribute.Int("feed.limit", limit),
		attribute.Int("feed.offset", offset),
		attribute.Int64("feed.version", version),
	)

	var pulses []models.Pulse
	missed := false
	err := cache.Aside(ctx, cache.FeedKey(userID, version, limit, offset), &pulses, cache.FeedTTL, func() error {
		missed = true
		var err error
		pulses, err = s.store.Follows.FeedPulses(ctx, userID, limit, offset)
		return err
	})
	if err != nil {
		span.SetError(err)
		observability.Logger.ErrorContext(ctx, "failed to load feed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	result := "hit"
	if missed {
		result = "miss"
	}
	observability.FeedCacheLookups.WithLabelValues(result).Inc()
	return pulses, nil
}

// bumpFollowerFeeds orphans the cached feeds of everyone following userID.
func bumpFollowerFeeds(ctx context.Context, store *repository.Store, userID uint) {
	followers, err := store.Follows.FollowerIDs(ctx, userID)
	if err != nil {
		observability.Logger.WarnContext(ctx, "could not list followers for feed invalidation",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
		return
	}
	cache.BumpFeedVersion(ctx, followers...)
}
