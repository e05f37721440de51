package repository

import (
	"context"
	"errors"

	"pulsifi/internal/models"
	"pulsifi/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReactionRepository stores the liked_by / disliked_by membership of content items.
type ReactionRepository interface {
	Set(ctx context.Context, userID uint, target models.ObjectRef, kind models.ReactionKind) error
	Clear(ctx context.Context, userID uint, target models.ObjectRef) (bool, error)
	Get(ctx context.Context, userID uint, target models.ObjectRef) (*models.Reaction, error)
	Users(ctx context.Context, target models.ObjectRef, kind models.ReactionKind) ([]models.User, error)
	Counts(ctx context.Context, target models.ObjectRef) (map[models.ReactionKind]int64, error)
}

type reactionRepository struct {
	db   *gorm.DB
	read *gorm.DB
}

var reactionLog = observability.NewRepoLogger("reactions")

// NewReactionRepository returns a new ReactionRepository implementation.
func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db, read: readDB(db)}
}

// Set places userID in the kind set of target. The single row per (user, target)
// moves between sets, so the user is never in both.
func (r *reactionRepository) Set(ctx context.Context, userID uint, target models.ObjectRef, kind models.ReactionKind) error {
	reaction := models.Reaction{
		UserID:      userID,
		ContentType: target.Type,
		ObjectID:    target.ID,
		Kind:        kind,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_type"}, {Name: "object_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "updated_at"}),
	}).Create(&reaction).Error; err != nil {
		reactionLog.LogError(ctx, err, "set")
		return models.NewInternalError(err)
	}
	reactionLog.LogUpdate(ctx, map[string]any{"user_id": userID, "target": target.String(), "kind": kind})
	return nil
}

func (r *reactionRepository) Clear(ctx context.Context, userID uint, target models.ObjectRef) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND content_type = ? AND object_id = ?", userID, target.Type, target.ID).
		Delete(&models.Reaction{})
	if res.Error != nil {
		reactionLog.LogError(ctx, res.Error, "clear")
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Get returns the reaction of userID on target, or nil when there is none.
func (r *reactionRepository) Get(ctx context.Context, userID uint, target models.ObjectRef) (*models.Reaction, error) {
	var reaction models.Reaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND content_type = ? AND object_id = ?", userID, target.Type, target.ID).
		First(&reaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &reaction, nil
}

func (r *reactionRepository) Users(ctx context.Context, target models.ObjectRef, kind models.ReactionKind) ([]models.User, error) {
	var users []models.User
	if err := r.read.WithContext(ctx).
		Joins("JOIN reactions ON reactions.user_id = users.id").
		Where("reactions.content_type = ? AND reactions.object_id = ? AND reactions.kind = ?", target.Type, target.ID, kind).
		Order("users.id ASC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *reactionRepository) Counts(ctx context.Context, target models.ObjectRef) (map[models.ReactionKind]int64, error) {
	type row struct {
		Kind  models.ReactionKind
		Total int64
	}
	var rows []row
	if err := r.read.WithContext(ctx).Model(&models.Reaction{}).
		Select("kind, COUNT(*) AS total").
		Where("content_type = ? AND object_id = ?", target.Type, target.ID).
		Group("kind").
		Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	counts := map[models.ReactionKind]int64{models.ReactionLike: 0, models.ReactionDislike: 0}
	for _, row := range rows {
		counts[row.Kind] = row.Total
	}
	return counts, nil
}
