package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"pulsifi/internal/config"
	"pulsifi/internal/models"
	"pulsifi/internal/observability"
	"pulsifi/internal/repository"
	"pulsifi/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

// replyDisplayLength caps the display string of a reply, parent chain included.
const replyDisplayLength = 100

const constraintReplyAcyclic = "reply_parent_acyclic"

var (
	errParentType     = errors.New("replied content must be a pulse or a reply")
	errParentSelf     = errors.New("replied content cannot be this reply")
	errParentMissing  = errors.New("replied content must be a valid object")
	errReplyCycle     = errors.New("reply chain loops back on itself")
	errNotReactable   = errors.New("only pulses and replies can be liked or disliked")
	errInvalidCreator = errors.New("select a valid user")
)

type ContentService struct {
	store *repository.Store
	rules config.Rules
	now   func() time.Time
}

type CreatePulseInput struct {
	CreatorID uint   `json:"creator_id"`
	Message   string `json:"message"`
}

type CreateReplyInput struct {
	CreatorID uint             `json:"creator_id"`
	Message   string           `json:"message"`
	Parent    models.ObjectRef `json:"parent"`
}

// UpdateContentInput changes only the non-nil fields.
type UpdateContentInput struct {
	Message *string `json:"message"`
	Visible *bool   `json:"is_visible"`
}

func NewContentService(store *repository.Store, rules config.Rules) *ContentService {
	return &ContentService{store: store, rules: rules, now: time.Now}
}

func (s *ContentService) GetPulse(ctx context.Context, id uint) (*models.Pulse, error) {
	return s.store.Content.GetPulse(ctx, id)
}

func (s *ContentService) GetReply(ctx context.Context, id uint) (*models.Reply, error) {
	return s.store.Content.GetReply(ctx, id)
}

func checkCreator(ctx context.Context, store *repository.Store, id uint, errs models.ValidationErrors) (*models.User, error) {
	u, err := store.Users.GetByID(ctx, id)
	if models.HasCode(err, models.CodeNotFound) {
		errs.Add("creator", errInvalidCreator.Error())
		return nil, nil
	}
	return u, err
}

func (s *ContentService) CreatePulse(ctx context.Context, in CreatePulseInput) (*models.Pulse, error) {
	pulse := &models.Pulse{CreatorID: in.CreatorID, Message: in.Message, Visible: true}

	errs := validation.Struct(pulse)
	creator, err := checkCreator(ctx, s.store, in.CreatorID, errs)
	if err != nil {
		return nil, err
	}
	recordValidation("pulse", errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if err := s.store.Content.CreatePulse(ctx, pulse); err != nil {
		return nil, err
	}
	pulse.Creator = *creator
	bumpFollowerFeeds(ctx, s.store, pulse.CreatorID)
	return pulse, nil
}

// UpdatePulse saves the pulse and, when its visibility changed, applies the same
// visibility to every reply in its tree. Both happen in one transaction.
func (s *ContentService) UpdatePulse(ctx context.Context, id uint, in UpdateContentInput) (*models.Pulse, error) {
	span, ctx := observability.NewSpan(ctx, "ContentService.UpdatePulse")
	defer span.End()

	var (
		updated  *models.Pulse
		cascaded int64
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		pulse, err := tx.Content.GetPulse(ctx, id)
		if err != nil {
			return err
		}
		wasVisible := pulse.Visible
		if in.Message != nil {
			pulse.Message = *in.Message
		}
		if in.Visible != nil {
			pulse.Visible = *in.Visible
		}

		errs := validation.Struct(pulse)
		recordValidation("pulse", errs)
		if err := errs.Err(); err != nil {
			return err
		}
		if err := tx.Content.UpdatePulse(ctx, pulse); err != nil {
			return err
		}
		if wasVisible != pulse.Visible {
			if cascaded, err = cascadeVisibility(ctx, tx, pulse); err != nil {
				return err
			}
		}
		updated = pulse
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.AddAttributes(attribute.Int64("cascade.replies", cascaded))
	if in.Visible != nil {
		observability.VisibilityCascadeSize.Observe(float64(cascaded))
		observability.Logger.InfoContext(ctx, "pulse visibility changed",
			slog.Uint64("pulse_id", uint64(updated.ID)),
			slog.Bool("is_visible", updated.Visible),
			slog.Int64("replies_updated", cascaded),
		)
	}
	bumpFollowerFeeds(ctx, s.store, updated.CreatorID)
	return updated, nil
}

func cascadeVisibility(ctx context.Context, tx *repository.Store, pulse *models.Pulse) (int64, error) {
	replies, err := fullDepthReplies(ctx, tx, pulse.Ref())
	if err != nil {
		return 0, err
	}

	var invalid error
	ids := make([]uint, 0, len(replies))
	for i := range replies {
		if errs := validation.Struct(&replies[i]); !errs.Empty() {
			invalid = multierr.Append(invalid, fmt.Errorf("reply %d: %w", replies[i].ID, errs.Err()))
		}
		ids = append(ids, replies[i].ID)
	}
	if invalid != nil {
		return 0, invalid
	}
	return tx.Content.SetRepliesVisible(ctx, ids, pulse.Visible)
}

// DeletePulse soft deletes the pulse and its replies.
func (s *ContentService) DeletePulse(ctx context.Context, id uint) error {
	hidden := false
	_, err := s.UpdatePulse(ctx, id, UpdateContentInput{Visible: &hidden})
	return err
}

func (s *ContentService) CreateReply(ctx context.Context, in CreateReplyInput) (*models.Reply, error) {
	span, ctx := observability.NewSpan(ctx, "ContentService.CreateReply")
	defer span.End()
	span.AddAttributes(observability.ObjectAttributes("reply.parent", in.Parent)...)

	reply := &models.Reply{
		CreatorID:  in.CreatorID,
		Message:    in.Message,
		Visible:    true,
		ParentType: in.Parent.Type,
		ParentID:   in.Parent.ID,
	}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		errs := validation.Struct(reply)
		creator, err := checkCreator(ctx, tx, in.CreatorID, errs)
		if err != nil {
			return err
		}
		root, err := validateReply(ctx, tx, reply, errs)
		if err != nil {
			return err
		}
		if root != nil && !root.Visible {
			reply.Visible = false
		}
		if root != nil && creator != nil {
			if err := s.checkReplyInterval(ctx, tx, creator.ID, root.ID, errs); err != nil {
				return err
			}
		}

		recordValidation("reply", errs)
		if err := errs.Err(); err != nil {
			return err
		}
		if err := tx.Content.CreateReply(ctx, reply); err != nil {
			return err
		}
		reply.Creator = *creator
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return reply, nil
}

func (s *ContentService) checkReplyInterval(ctx context.Context, store *repository.Store, creatorID, rootID uint, errs models.ValidationErrors) error {
	if s.rules.MinTimeBetweenReplies <= 0 {
		return nil
	}
	latest, err := latestReply(ctx, store, creatorID, rootID, 0)
	switch {
	case models.HasCode(err, models.CodeNotFound):
		return nil
	case err != nil:
		return err
	}
	if s.now().Sub(latest.CreatedAt) < s.rules.MinTimeBetweenReplies {
		errs.Add(models.NonFieldErrors, fmt.Sprintf("you must wait %s between replies under the same pulse", s.rules.MinTimeBetweenReplies))
	}
	return nil
}

// validateReply checks the parent reference and returns the original pulse when it resolves.
func validateReply(ctx context.Context, store *repository.Store, reply *models.Reply, errs models.ValidationErrors) (*models.Pulse, error) {
	parent := reply.Parent()
	if !parent.IsContent() {
		errs.Add("parent_type", errParentType.Error())
		return nil, nil
	}
	if reply.ID != 0 && parent == reply.Ref() {
		errs.Add("parent_id", errParentSelf.Error())
		return nil, nil
	}

	exists, err := store.Content.Exists(ctx, parent)
	if err != nil {
		return nil, err
	}
	if !exists {
		errs.Add(models.NonFieldErrors, errParentMissing.Error())
		return nil, nil
	}

	root, err := originalPulse(ctx, store, parent)
	if models.HasCode(err, models.CodeIntegrity) {
		errs.Add("parent_id", errReplyCycle.Error())
		return nil, nil
	}
	return root, err
}

func (s *ContentService) UpdateReply(ctx context.Context, id uint, in UpdateContentInput) (*models.Reply, error) {
	var updated *models.Reply
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		reply, err := tx.Content.GetReply(ctx, id)
		if err != nil {
			return err
		}
		if in.Message != nil {
			reply.Message = *in.Message
		}
		if in.Visible != nil {
			reply.Visible = *in.Visible
		}

		errs := validation.Struct(reply)
		root, err := validateReply(ctx, tx, reply, errs)
		if err != nil {
			return err
		}
		recordValidation("reply", errs)
		if err := errs.Err(); err != nil {
			return err
		}
		if root != nil && !root.Visible {
			reply.Visible = false
		}
		if err := tx.Content.UpdateReply(ctx, reply); err != nil {
			return err
		}
		updated = reply
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteReply soft deletes the reply. Its own replies keep their visibility.
func (s *ContentService) DeleteReply(ctx context.Context, id uint) error {
	hidden := false
	_, err := s.UpdateReply(ctx, id, UpdateContentInput{Visible: &hidden})
	return err
}

// OriginalPulse walks the parent chain of ref up to its root pulse.
func (s *ContentService) OriginalPulse(ctx context.Context, ref models.ObjectRef) (*models.Pulse, error) {
	return originalPulse(ctx, s.store, ref)
}

func originalPulse(ctx context.Context, store *repository.Store, ref models.ObjectRef) (*models.Pulse, error) {
	seen := make(map[uint]struct{})
	for {
		switch ref.Type {
		case models.ContentTypePulse:
			return store.Content.GetPulse(ctx, ref.ID)
		case models.ContentTypeReply:
			if _, ok := seen[ref.ID]; ok {
				return nil, models.NewIntegrityError(constraintReplyAcyclic, errReplyCycle)
			}
			seen[ref.ID] = struct{}{}
			reply, err := store.Content.GetReply(ctx, ref.ID)
			if err != nil {
				return nil, err
			}
			ref = reply.Parent()
		default:
			return nil, models.NewFieldValidationError("parent_type", errParentType.Error())
		}
	}
}

// FullDepthReplies returns every reply below ref, level by level.
func (s *ContentService) FullDepthReplies(ctx context.Context, ref models.ObjectRef) ([]models.Reply, error) {
	if !ref.IsContent() {
		return nil, models.NewFieldValidationError("parent_type", errParentType.Error())
	}
	exists, err := s.store.Content.Exists(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NewNotFoundError(ref.Type.Label(), ref.ID)
	}
	return fullDepthReplies(ctx, s.store, ref)
}

func fullDepthReplies(ctx context.Context, store *repository.Store, root models.ObjectRef) ([]models.Reply, error) {
	seen := make(map[uint]struct{})
	if root.Type == models.ContentTypeReply {
		seen[root.ID] = struct{}{}
	}

	var all []models.Reply
	parentType, frontier := root.Type, []uint{root.ID}
	for len(frontier) > 0 {
		children, err := store.Content.ChildReplies(ctx, parentType, frontier)
		if err != nil {
			return nil, err
		}
		next := make([]uint, 0, len(children))
		for _, child := range children {
			if _, ok := seen[child.ID]; ok {
				continue
			}
			seen[child.ID] = struct{}{}
			all = append(all, child)
			next = append(next, child.ID)
		}
		parentType, frontier = models.ContentTypeReply, next
	}
	return all, nil
}

// LatestReplyUnderSameOriginalPulse returns the newest reply by creatorID anywhere under
// the pulse rootID, ignoring excludeID.
func (s *ContentService) LatestReplyUnderSameOriginalPulse(ctx context.Context, creatorID, rootID, excludeID uint) (*models.Reply, error) {
	if _, err := s.store.Content.GetPulse(ctx, rootID); err != nil {
		return nil, err
	}
	return latestReply(ctx, s.store, creatorID, rootID, excludeID)
}

func latestReply(ctx context.Context, store *repository.Store, creatorID, rootID, excludeID uint) (*models.Reply, error) {
	replies, err := fullDepthReplies(ctx, store, models.Ref(models.ContentTypePulse, rootID))
	if err != nil {
		return nil, err
	}

	var latest *models.Reply
	for i := range replies {
		r := &replies[i]
		if r.CreatorID != creatorID || r.ID == excludeID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) ||
			(r.CreatedAt.Equal(latest.CreatedAt) && r.ID > latest.ID) {
			latest = r
		}
	}
	if latest == nil {
		return nil, models.NewNotFoundError("Reply", fmt.Sprintf("by user %d under pulse %d", creatorID, rootID))
	}
	return latest, nil
}

func (s *ContentService) Like(ctx context.Context, userID uint, target models.ObjectRef) error {
	return s.react(ctx, userID, target, models.ReactionLike)
}

func (s *ContentService) Dislike(ctx context.Context, userID uint, target models.ObjectRef) error {
	return s.react(ctx, userID, target, models.ReactionDislike)
}

func (s *ContentService) react(ctx context.Context, userID uint, target models.ObjectRef, kind models.ReactionKind) error {
	if err := s.checkReactable(ctx, target); err != nil {
		return err
	}
	if _, err := s.store.Users.GetByID(ctx, userID); err != nil {
		return err
	}
	if err := s.store.Reactions.Set(ctx, userID, target, kind); err != nil {
		return err
	}
	observability.ReactionsTotal.WithLabelValues(string(target.Type), string(kind)).Inc()
	return nil
}

// ClearReaction removes userID from both reaction sets of target.
func (s *ContentService) ClearReaction(ctx context.Context, userID uint, target models.ObjectRef) (bool, error) {
	if err := s.checkReactable(ctx, target); err != nil {
		return false, err
	}
	removed, err := s.store.Reactions.Clear(ctx, userID, target)
	if err != nil {
		return false, err
	}
	if removed {
		observability.ReactionsTotal.WithLabelValues(string(target.Type), "clear").Inc()
	}
	return removed, nil
}

func (s *ContentService) LikedBy(ctx context.Context, target models.ObjectRef) ([]models.User, error) {
	if err := s.checkReactable(ctx, target); err != nil {
		return nil, err
	}
	return s.store.Reactions.Users(ctx, target, models.ReactionLike)
}

func (s *ContentService) DislikedBy(ctx context.Context, target models.ObjectRef) ([]models.User, error) {
	if err := s.checkReactable(ctx, target); err != nil {
		return nil, err
	}
	return s.store.Reactions.Users(ctx, target, models.ReactionDislike)
}

func (s *ContentService) ReactionCounts(ctx context.Context, target models.ObjectRef) (map[models.ReactionKind]int64, error) {
	if err := s.checkReactable(ctx, target); err != nil {
		return nil, err
	}
	return s.store.Reactions.Counts(ctx, target)
}

func (s *ContentService) checkReactable(ctx context.Context, target models.ObjectRef) error {
	if !target.IsContent() {
		return models.NewFieldValidationError("content_type", errNotReactable.Error())
	}
	exists, err := s.store.Content.Exists(ctx, target)
	if err != nil {
		return err
	}
	if !exists {
		return models.NewNotFoundError(target.Type.Label(), target.ID)
	}
	return nil
}

// DisplayString renders a pulse or reply the way moderation tooling lists it.
func (s *ContentService) DisplayString(ctx context.Context, ref models.ObjectRef) (string, error) {
	return s.display(ctx, ref, -1)
}

func (s *ContentService) display(ctx context.Context, ref models.ObjectRef, budget int) (string, error) {
	switch ref.Type {
	case models.ContentTypePulse:
		p, err := s.store.Content.GetPulse(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		return models.Truncate(s.contentPrefix(&p.Creator, p.Visible, p.Message), budget), nil
	case models.ContentTypeReply:
		r, err := s.store.Content.GetReply(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		limit := replyDisplayLength
		if budget >= 0 && budget < limit {
			limit = budget
		}
		head := s.contentPrefix(&r.Creator, r.Visible, r.Message) + " (For object - " + r.ParentType.Label() + " | "
		if utf8.RuneCountInString(head) >= limit {
			return models.Truncate(head, limit), nil
		}
		parent, err := s.display(ctx, r.Parent(), limit-utf8.RuneCountInString(head))
		if err != nil {
			return "", err
		}
		return models.Truncate(head+parent+")", limit), nil
	default:
		return "", models.NewFieldValidationError("content_type", errParentType.Error())
	}
}

func (s *ContentService) contentPrefix(creator *models.User, visible bool, message string) string {
	return creator.String() + ", " + models.StringWhenVisible(visible, models.Truncate(message, s.rules.MessageDisplayLength))
}
