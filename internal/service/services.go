package service

import (
	"pulsifi/internal/config"
	"pulsifi/internal/repository"

	"gorm.io/gorm"
)

// Services wires every service over one Store.
type Services struct {
	Store      *repository.Store
	Users      *UserService
	Follows    *FollowService
	Content    *ContentService
	Resolver   *ObjectResolver
	Moderation *ModerationService
}

func NewServices(db *gorm.DB, rules config.Rules) *Services {
	store := repository.NewStore(db)
	users := NewUserService(store, rules)
	content := NewContentService(store, rules)
	resolver := NewObjectResolver(store, users, content)

	return &Services{
		Store:      store,
		Users:      users,
		Follows:    NewFollowService(store),
		Content:    content,
		Resolver:   resolver,
		Moderation: NewModerationService(store, resolver),
	}
}
