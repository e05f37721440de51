// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"

	"pulsifi/internal/cache"
	"pulsifi/internal/models"
	"pulsifi/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines persistence operations for users and their e-mail addresses.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id uint, active bool) error
	OtherUsernames(ctx context.Context, excludeID uint) ([]string, error)
	CountUsernamesContaining(ctx context.Context, excludeID uint, fragments []string) (int64, error)
	EmailInUse(ctx context.Context, email string, excludeUserID uint) (bool, error)
	EmailKeyInUse(ctx context.Context, key, email string, excludeUserID uint) (bool, error)
	AddEmailAddress(ctx context.Context, addr *models.EmailAddress) error
	SetEmailVerified(ctx context.Context, userID uint, email string) error
	ListByGroup(ctx context.Context, group string, activeOnly bool) ([]models.User, error)
	ListStaff(ctx context.Context) ([]models.User, error)
}

type userRepository struct {
	db     *gorm.DB
	read   *gorm.DB
	cached bool
	hooks  *commitHooks
}

var userLog = observability.NewRepoLogger("users")

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, read: readDB(db), cached: true}
}

func (r *userRepository) load(ctx context.Context, id uint, user *models.User) error {
	if err := r.read.WithContext(ctx).Preload("Groups").Preload("Emails").First(user, id).Error; err != nil {
		return notFoundOr(err, "User", id)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if !r.cached {
		if err := r.load(ctx, id, &user); err != nil {
			return nil, err
		}
		return &user, nil
	}

	err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		return r.load(ctx, id, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.read.WithContext(ctx).Preload("Groups").Preload("Emails").
		Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	if err := r.read.WithContext(ctx).Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Omit("Groups.*").Create(user).Error; err != nil {
		userLog.LogError(ctx, err, "create")
		if isUniqueConstraintError(err) {
			return models.NewValidationError("a user with that username or email address already exists")
		}
		return models.NewInternalError(err)
	}
	userLog.LogCreate(ctx, map[string]any{"user_id": user.ID, "username": user.Username})
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error; err != nil {
		userLog.LogError(ctx, err, "update")
		if isUniqueConstraintError(err) {
			return models.NewValidationError("a user with that username or email address already exists")
		}
		return models.NewInternalError(err)
	}
	userLog.LogUpdate(ctx, map[string]any{"user_id": user.ID})
	r.hooks.invalidateUser(ctx, user.ID)
	return nil
}

func (r *userRepository) SetActive(ctx context.Context, id uint, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		userLog.LogError(ctx, res.Error, "set_active")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	userLog.LogUpdate(ctx, map[string]any{"user_id": id, "is_active": active})
	r.hooks.invalidateUser(ctx, id)
	return nil
}

// OtherUsernames returns the usernames of every active user except excludeID.
func (r *userRepository) OtherUsernames(ctx context.Context, excludeID uint) ([]string, error) {
	var names []string
	if err := r.read.WithContext(ctx).Model(&models.User{}).
		Where("id <> ? AND is_active = ?", excludeID, true).
		Order("id ASC").
		Pluck("username", &names).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return names, nil
}

// CountUsernamesContaining counts users other than excludeID whose username contains any fragment, ignoring case.
func (r *userRepository) CountUsernamesContaining(ctx context.Context, excludeID uint, fragments []string) (int64, error) {
	conds := make([]string, 0, len(fragments))
	args := make([]any, 0, len(fragments))
	for _, f := range fragments {
		if f == "" {
			continue
		}
		conds = append(conds, `LOWER(username) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(f))
	}
	if len(conds) == 0 {
		return 0, nil
	}

	var count int64
	if err := r.read.WithContext(ctx).Model(&models.User{}).
		Where("id <> ?", excludeID).
		Where(strings.Join(conds, " OR "), args...).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// EmailInUse reports whether email belongs to another user, either as the account
// address or as any recorded e-mail address.
func (r *userRepository) EmailInUse(ctx context.Context, email string, excludeUserID uint) (bool, error) {
	email = strings.ToLower(email)

	var count int64
	if err := r.read.WithContext(ctx).Model(&models.User{}).
		Where("id <> ? AND LOWER(email) = ?", excludeUserID, email).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	if count > 0 {
		return true, nil
	}

	if err := r.read.WithContext(ctx).Model(&models.EmailAddress{}).
		Where("user_id <> ? AND LOWER(email) = ?", excludeUserID, email).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// EmailKeyInUse reports whether another user's address, other than email itself, contains key.
func (r *userRepository) EmailKeyInUse(ctx context.Context, key, email string, excludeUserID uint) (bool, error) {
	var count int64
	if err := r.read.WithContext(ctx).Model(&models.User{}).
		Where("id <> ? AND LOWER(email) <> ?", excludeUserID, strings.ToLower(email)).
		Where(`LOWER(email) LIKE ? ESCAPE '\'`, containsPattern(key)).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *userRepository) AddEmailAddress(ctx context.Context, addr *models.EmailAddress) error {
	if err := r.db.WithContext(ctx).Create(addr).Error; err != nil {
		userLog.LogError(ctx, err, "add_email")
		if isUniqueConstraintError(err) {
			return models.NewFieldValidationError("email", "that email address is already in use by another user")
		}
		return models.NewInternalError(err)
	}
	r.hooks.invalidateUser(ctx, addr.UserID)
	return nil
}

func (r *userRepository) SetEmailVerified(ctx context.Context, userID uint, email string) error {
	res := r.db.WithContext(ctx).Model(&models.EmailAddress{}).
		Where("user_id = ? AND LOWER(email) = ?", userID, strings.ToLower(email)).
		Update("verified", true)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("EmailAddress", email)
	}
	r.hooks.invalidateUser(ctx, userID)
	return nil
}

// ListByGroup returns the members of the named group ordered by ID.
func (r *userRepository) ListByGroup(ctx context.Context, group string, activeOnly bool) ([]models.User, error) {
	q := r.read.WithContext(ctx).Model(&models.User{}).
		Joins("JOIN user_groups ON user_groups.user_id = users.id").
		Joins(`JOIN "groups" ON "groups".id = user_groups.group_id`).
		Where(`"groups".name = ?`, group)
	if activeOnly {
		q = q.Where("users.is_active = ?", true)
	}

	var users []models.User
	if err := q.Preload("Groups").Order("users.id ASC").Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) ListStaff(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.read.WithContext(ctx).Preload("Groups").
		Where("is_staff = ? OR is_superuser = ?", true, true).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}
