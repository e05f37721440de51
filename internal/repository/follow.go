package repository

import (
	"context"
	"strings"

	"pulsifi/internal/models"
	"pulsifi/internal/observability"

	"gorm.io/gorm"
)

// FollowRepository defines persistence operations for the follow graph.
type FollowRepository interface {
	Create(ctx context.Context, follow *models.Follow) error
	Delete(ctx context.Context, followerID, followedID uint) (bool, error)
	Exists(ctx context.Context, followerID, followedID uint) (bool, error)
	Following(ctx context.Context, userID uint) ([]models.User, error)
	Followers(ctx context.Context, userID uint) ([]models.User, error)
	FollowerIDs(ctx context.Context, userID uint) ([]uint, error)
	FeedPulses(ctx context.Context, userID uint, limit, offset int) ([]models.Pulse, error)
}

type followRepository struct {
	db   *gorm.DB
	read *gorm.DB
}

var followLog = observability.NewRepoLogger("follows")

// NewFollowRepository returns a new FollowRepository implementation.
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db, read: readDB(db)}
}

// Create inserts a follow edge. Storage constraint violations come back as
// integrity errors naming the violated constraint.
func (r *followRepository) Create(ctx context.Context, follow *models.Follow) error {
	if err := r.db.WithContext(ctx).Create(follow).Error; err != nil {
		followLog.LogError(ctx, err, "create")
		return translateFollowError(err)
	}
	followLog.LogCreate(ctx, map[string]any{"follower_id": follow.FollowerID, "followed_id": follow.FollowedID})
	return nil
}

func translateFollowError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, models.ConstraintNotFollowSelf) || isCheckConstraintError(err):
		return models.NewIntegrityError(models.ConstraintNotFollowSelf, models.ErrSelfFollow)
	case isUniqueConstraintError(err):
		return models.NewIntegrityError(models.ConstraintFollowOnce, models.ErrDuplicateFollow)
	case isForeignKeyError(err):
		return models.NewNotFoundError("User", "follow edge endpoint")
	}
	return models.NewInternalError(err)
}

func (r *followRepository) Delete(ctx context.Context, followerID, followedID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&models.Follow{})
	if res.Error != nil {
		followLog.LogError(ctx, res.Error, "delete")
		return false, models.NewInternalError(res.Error)
	}
	if res.RowsAffected > 0 {
		followLog.LogDelete(ctx, map[string]any{"follower_id": followerID, "followed_id": followedID})
	}
	return res.RowsAffected > 0, nil
}

func (r *followRepository) Exists(ctx context.Context, followerID, followedID uint) (bool, error) {
	var count int64
	if err := r.read.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// Following returns the users userID follows, in follow order.
func (r *followRepository) Following(ctx context.Context, userID uint) ([]models.User, error) {
	var users []models.User
	if err := r.read.WithContext(ctx).
		Joins("JOIN follows ON follows.followed_id = users.id").
		Where("follows.follower_id = ?", userID).
		Order("follows.id ASC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// Followers returns the users following userID, in follow order.
func (r *followRepository) Followers(ctx context.Context, userID uint) ([]models.User, error) {
	var users []models.User
	if err := r.read.WithContext(ctx).
		Joins("JOIN follows ON follows.follower_id = users.id").
		Where("follows.followed_id = ?", userID).
		Order("follows.id ASC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *followRepository) FollowerIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	if err := r.read.WithContext(ctx).Model(&models.Follow{}).
		Where("followed_id = ?", userID).
		Pluck("follower_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// FeedPulses returns pulses created by the active users userID follows, oldest first.
func (r *followRepository) FeedPulses(ctx context.Context, userID uint, limit, offset int) ([]models.Pulse, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "FeedPulses", "pulses")
	defer span.End()
	defer queryMetrics.TrackQuery("feed_pulses", "pulses")()

	var pulses []models.Pulse
	if err := r.read.WithContext(ctx).
		Joins("JOIN follows ON follows.followed_id = pulses.creator_id").
		Joins("JOIN users ON users.id = pulses.creator_id").
		Where("follows.follower_id = ? AND users.is_active = ?", userID, true).
		Preload("Creator").
		Order("pulses.created_at ASC, pulses.id ASC").
		Limit(limit).
		Offset(offset).
		Find(&pulses).Error; err != nil {
		observability.RecordErrorInContext(ctx, err)
		return nil, models.NewInternalError(err)
	}
	return pulses, nil
}
