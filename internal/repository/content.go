package repository

import (
	"context"

	"pulsifi/internal/models"
	"pulsifi/internal/observability"

	"gorm.io/gorm"
)

// ContentRepository defines persistence operations for pulses and replies.
type ContentRepository interface {
	GetPulse(ctx context.Context, id uint) (*models.Pulse, error)
	GetReply(ctx context.Context, id uint) (*models.Reply, error)
	Exists(ctx context.Context, ref models.ObjectRef) (bool, error)
	CreatePulse(ctx context.Context, pulse *models.Pulse) error
	CreateReply(ctx context.Context, reply *models.Reply) error
	UpdatePulse(ctx context.Context, pulse *models.Pulse) error
	UpdateReply(ctx context.Context, reply *models.Reply) error
	ChildReplies(ctx context.Context, parentType models.ContentType, parentIDs []uint) ([]models.Reply, error)
	SetRepliesVisible(ctx context.Context, ids []uint, visible bool) (int64, error)
}

type contentRepository struct {
	db   *gorm.DB
	read *gorm.DB
}

var (
	pulseLog = observability.NewRepoLogger("pulses")
	replyLog = observability.NewRepoLogger("replies")
)

// NewContentRepository returns a new ContentRepository implementation.
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db, read: readDB(db)}
}

func (r *contentRepository) GetPulse(ctx context.Context, id uint) (*models.Pulse, error) {
	var pulse models.Pulse
	if err := r.read.WithContext(ctx).Preload("Creator").First(&pulse, id).Error; err != nil {
		return nil, notFoundOr(err, "Pulse", id)
	}
	return &pulse, nil
}

func (r *contentRepository) GetReply(ctx context.Context, id uint) (*models.Reply, error) {
	var reply models.Reply
	if err := r.read.WithContext(ctx).Preload("Creator").First(&reply, id).Error; err != nil {
		return nil, notFoundOr(err, "Reply", id)
	}
	return &reply, nil
}

// Exists reports whether ref points at a stored pulse or reply.
func (r *contentRepository) Exists(ctx context.Context, ref models.ObjectRef) (bool, error) {
	var model any
	switch ref.Type {
	case models.ContentTypePulse:
		model = &models.Pulse{}
	case models.ContentTypeReply:
		model = &models.Reply{}
	default:
		return false, nil
	}

	var count int64
	if err := r.read.WithContext(ctx).Model(model).Where("id = ?", ref.ID).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *contentRepository) CreatePulse(ctx context.Context, pulse *models.Pulse) error {
	if err := r.db.WithContext(ctx).Omit("Creator").Create(pulse).Error; err != nil {
		pulseLog.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	pulseLog.LogCreate(ctx, map[string]any{"pulse_id": pulse.ID, "creator_id": pulse.CreatorID})
	return nil
}

func (r *contentRepository) CreateReply(ctx context.Context, reply *models.Reply) error {
	if err := r.db.WithContext(ctx).Omit("Creator").Create(reply).Error; err != nil {
		replyLog.LogError(ctx, err, "create")
		if isCheckConstraintError(err) {
			return models.NewIntegrityError(models.ConstraintReplyParentType, models.ErrReplyParent)
		}
		return models.NewInternalError(err)
	}
	replyLog.LogCreate(ctx, map[string]any{"reply_id": reply.ID, "parent": reply.Parent().String()})
	return nil
}

func (r *contentRepository) UpdatePulse(ctx context.Context, pulse *models.Pulse) error {
	if err := r.db.WithContext(ctx).Omit("Creator").Save(pulse).Error; err != nil {
		pulseLog.LogError(ctx, err, "update")
		return models.NewInternalError(err)
	}
	pulseLog.LogUpdate(ctx, map[string]any{"pulse_id": pulse.ID, "is_visible": pulse.Visible})
	return nil
}

func (r *contentRepository) UpdateReply(ctx context.Context, reply *models.Reply) error {
	if err := r.db.WithContext(ctx).Omit("Creator").Save(reply).Error; err != nil {
		replyLog.LogError(ctx, err, "update")
		return models.NewInternalError(err)
	}
	replyLog.LogUpdate(ctx, map[string]any{"reply_id": reply.ID, "is_visible": reply.Visible})
	return nil
}

// ChildReplies returns the replies directly attached to any of the given parents.
func (r *contentRepository) ChildReplies(ctx context.Context, parentType models.ContentType, parentIDs []uint) ([]models.Reply, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "ChildReplies", "replies")
	defer span.End()
	defer queryMetrics.TrackQuery("child_replies", "replies")()

	var replies []models.Reply
	for _, chunk := range chunkIDs(parentIDs, inClauseChunk) {
		var batch []models.Reply
		if err := r.db.WithContext(ctx).
			Where("parent_type = ? AND parent_id IN ?", parentType, chunk).
			Order("id ASC").
			Find(&batch).Error; err != nil {
			observability.RecordErrorInContext(ctx, err)
			return nil, models.NewInternalError(err)
		}
		replies = append(replies, batch...)
	}
	return replies, nil
}

// SetRepliesVisible bulk-updates the visibility flag and returns the number of rows changed.
func (r *contentRepository) SetRepliesVisible(ctx context.Context, ids []uint, visible bool) (int64, error) {
	var affected int64
	for _, chunk := range chunkIDs(ids, inClauseChunk) {
		res := r.db.WithContext(ctx).Model(&models.Reply{}).
			Where("id IN ? AND is_visible <> ?", chunk, visible).
			Update("is_visible", visible)
		if res.Error != nil {
			replyLog.LogError(ctx, res.Error, "set_visible")
			return affected, models.NewInternalError(res.Error)
		}
		affected += res.RowsAffected
	}
	replyLog.LogUpdate(ctx, map[string]any{"replies": len(ids), "changed": affected, "is_visible": visible})
	return affected, nil
}
