package repository

import (
	"context"

	"pulsifi/internal/models"
	"pulsifi/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupRepository manages named roles and their memberships.
type GroupRepository interface {
	GetByName(ctx context.Context, name string) (*models.Group, error)
	Ensure(ctx context.Context, names ...string) error
	AddMember(ctx context.Context, userID uint, name string) error
	RemoveMember(ctx context.Context, userID uint, name string) error
	MemberNames(ctx context.Context, userID uint) ([]string, error)
}

type groupRepository struct {
	db    *gorm.DB
	hooks *commitHooks
}

var groupLog = observability.NewRepoLogger("user_groups")

// NewGroupRepository returns a new GroupRepository implementation.
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) GetByName(ctx context.Context, name string) (*models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&group).Error; err != nil {
		return nil, notFoundOr(err, "Group", name)
	}
	return &group, nil
}

// Ensure creates every named group that does not exist yet.
func (r *groupRepository) Ensure(ctx context.Context, names ...string) error {
	for _, name := range names {
		g := models.Group{Name: name}
		if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&g).Error; err != nil {
			groupLog.LogError(ctx, err, "ensure")
			return models.NewInternalError(err)
		}
	}
	return nil
}

// AddMember adds userID to the named group. Adding an existing member is a no-op.
func (r *groupRepository) AddMember(ctx context.Context, userID uint, name string) error {
	group, err := r.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Table("user_groups").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(map[string]any{"user_id": userID, "group_id": group.ID}).Error; err != nil {
		groupLog.LogError(ctx, err, "add_member")
		if isForeignKeyError(err) {
			return models.NewNotFoundError("User", userID)
		}
		return models.NewInternalError(err)
	}
	groupLog.LogCreate(ctx, map[string]any{"user_id": userID, "group": name})
	r.hooks.invalidateUser(ctx, userID)
	return nil
}

func (r *groupRepository) RemoveMember(ctx context.Context, userID uint, name string) error {
	group, err := r.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Exec("DELETE FROM user_groups WHERE user_id = ? AND group_id = ?", userID, group.ID).Error; err != nil {
		groupLog.LogError(ctx, err, "remove_member")
		return models.NewInternalError(err)
	}
	groupLog.LogDelete(ctx, map[string]any{"user_id": userID, "group": name})
	r.hooks.invalidateUser(ctx, userID)
	return nil
}

func (r *groupRepository) MemberNames(ctx context.Context, userID uint) ([]string, error) {
	var names []string
	if err := r.db.WithContext(ctx).Table("groups").
		Joins(`JOIN user_groups ON user_groups.group_id = "groups".id`).
		Where("user_groups.user_id = ?", userID).
		Order(`"groups".name ASC`).
		Pluck(`"groups".name`, &names).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return names, nil
}
