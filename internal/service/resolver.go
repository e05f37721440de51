package service

import (
	"context"
	"errors"

	"pulsifi/internal/models"
	"pulsifi/internal/repository"
)

var errUnknownObjectType = errors.New("object type must be user, pulse or reply")

// ObjectResolver turns an ObjectRef into the entity it points at, whatever its type.
type ObjectResolver struct {
	store   *repository.Store
	users   *UserService
	content *ContentService
}

func NewObjectResolver(store *repository.Store, users *UserService, content *ContentService) *ObjectResolver {
	return &ObjectResolver{store: store, users: users, content: content}
}

func (r *ObjectResolver) Resolve(ctx context.Context, ref models.ObjectRef) (models.Reportable, error) {
	return resolve(ctx, r.store, ref)
}

func resolve(ctx context.Context, store *repository.Store, ref models.ObjectRef) (models.Reportable, error) {
	var (
		obj models.Reportable
		err error
	)
	switch ref.Type {
	case models.ContentTypeUser:
		var u *models.User
		u, err = store.Users.GetByID(ctx, ref.ID)
		obj = u
	case models.ContentTypePulse:
		var p *models.Pulse
		p, err = store.Content.GetPulse(ctx, ref.ID)
		obj = p
	case models.ContentTypeReply:
		var r *models.Reply
		r, err = store.Content.GetReply(ctx, ref.ID)
		obj = r
	default:
		return nil, models.NewFieldValidationError("type", errUnknownObjectType.Error())
	}
	// a typed nil would satisfy the interface
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// MarkDeleted soft deletes the referenced object with the semantics of its owning service:
// users are deactivated, pulses hide their whole reply tree, replies hide only themselves.
func (r *ObjectResolver) MarkDeleted(ctx context.Context, ref models.ObjectRef) error {
	switch ref.Type {
	case models.ContentTypeUser:
		return r.users.DeleteUser(ctx, ref.ID)
	case models.ContentTypePulse:
		return r.content.DeletePulse(ctx, ref.ID)
	case models.ContentTypeReply:
		return r.content.DeleteReply(ctx, ref.ID)
	default:
		return models.NewFieldValidationError("type", errUnknownObjectType.Error())
	}
}

// Display renders the referenced object's display string.
func (r *ObjectResolver) Display(ctx context.Context, ref models.ObjectRef) (string, error) {
	if ref.Type == models.ContentTypeUser {
		u, err := r.store.Users.GetByID(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		return r.users.DisplayString(u), nil
	}
	return r.content.DisplayString(ctx, ref)
}
