package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"pulsifi/internal/config"
	"pulsifi/internal/models"
	"pulsifi/internal/observability"
	"pulsifi/internal/repository"
	"pulsifi/internal/validation"
)

const (
	errUnverifiedUser        = "user cannot become verified without at least one verified email address"
	errSuperuserLeavesAdmins = "a superuser must remain in the Admins group"
)

type UserService struct {
	store    *repository.Store
	rules    config.Rules
	reserved *validation.ReservedNames
	now      func() time.Time
}

type CreateUserInput struct {
	Username      string   `json:"username"`
	Email         string   `json:"email"`
	Bio           string   `json:"bio"`
	IsStaff       bool     `json:"is_staff"`
	IsSuperuser   bool     `json:"is_superuser"`
	IsVerified    bool     `json:"is_verified"`
	EmailVerified bool     `json:"email_verified"`
	Groups        []string `json:"groups" validate:"dive,oneof=Moderators Admins"`
}

// UpdateUserInput changes only the non-nil fields.
type UpdateUserInput struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	Bio         *string `json:"bio"`
	IsStaff     *bool   `json:"is_staff"`
	IsSuperuser *bool   `json:"is_superuser"`
	IsVerified  *bool   `json:"is_verified"`
	IsActive    *bool   `json:"is_active"`
}

func NewUserService(store *repository.Store, rules config.Rules) *UserService {
	return &UserService{
		store:    store,
		rules:    rules,
		reserved: validation.NewReservedNames(rules.CustomReservedUsernames...),
		now:      time.Now,
	}
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.store.Users.GetByID(ctx, id)
}

func (s *UserService) DisplayString(u *models.User) string {
	return u.String()
}

// ValidateUser checks every account rule against u and returns all violations at once.
// It normalizes u.Email and sets IsStaff for superusers as a side effect.
// The returned error is reserved for storage failures.
func (s *UserService) ValidateUser(ctx context.Context, u *models.User) (models.ValidationErrors, error) {
	return s.validateUser(ctx, s.store, u)
}

func (s *UserService) validateUser(ctx context.Context, store *repository.Store, u *models.User) (models.ValidationErrors, error) {
	if u.IsSuperuser {
		u.IsStaff = true
	}
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.TrimSpace(u.Email)

	errs := validation.Struct(u)
	restricted := s.rules.RestrictedAdminUsernames

	var allowedKnown, allowed bool
	restrictedAllowed := func() (bool, error) {
		if allowedKnown {
			return allowed, nil
		}
		if !u.IsStaff {
			allowed, allowedKnown = false, true
			return false, nil
		}
		n, err := store.Users.CountUsernamesContaining(ctx, u.ID, restricted)
		if err != nil {
			return false, err
		}
		allowed, allowedKnown = n < int64(s.rules.AdminCount), true
		return allowed, nil
	}

	for _, err := range validation.CheckUsername(u.Username, s.rules.UsernameMinLength, s.reserved) {
		errs.Add("username", err.Error())
	}
	if u.Username != "" {
		if validation.ContainsRestricted(u.Username, restricted) {
			ok, err := restrictedAllowed()
			if err != nil {
				return nil, err
			}
			if !ok {
				errs.Add("username", validation.ErrUsernameRestricted.Error())
			}
		}

		others, err := store.Users.OtherUsernames(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if match, similar := validation.TooSimilar(u.Username, others, s.rules.UsernameSimilarityPercentage); similar {
			observability.Logger.DebugContext(ctx, "username too similar to an existing one",
				slog.String("username", u.Username),
				slog.String("existing", match),
			)
			errs.Add("username", validation.ErrUsernameSimilar.Error())
		}
	}

	for _, err := range validation.CheckEmail(u.Email) {
		errs.Add("email", err.Error())
	}
	if norm, ok := validation.NormalizeEmail(u.Email); ok {
		if !norm.IsGoogleMail() && validation.ContainsRestricted(norm.Domain.Name, restricted) {
			ok, err := restrictedAllowed()
			if err != nil {
				return nil, err
			}
			if !ok {
				errs.Add("email", validation.ErrEmailRestricted.Error())
			}
		}
		u.Email = norm.String()

		taken, err := store.Users.EmailKeyInUse(ctx, norm.Key(), u.Email, u.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			errs.Add("email", validation.ErrEmailInUse.Error())
		}
	}
	if u.Email != "" {
		taken, err := store.Users.EmailInUse(ctx, u.Email, u.ID)
		if err != nil {
			return nil, err
		}
		if taken && !slices.Contains(errs["email"], validation.ErrEmailInUse.Error()) {
			errs.Add("email", validation.ErrEmailInUse.Error())
		}
	}

	if u.IsVerified && !u.HasVerifiedEmail() {
		errs.Add("is_verified", errUnverifiedUser)
	}

	recordValidation("user", errs)
	return errs, nil
}

func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	span, ctx := observability.NewSpan(ctx, "UserService.CreateUser")
	defer span.End()

	if errs := validation.Struct(in); !errs.Empty() {
		recordValidation("user", errs)
		return nil, errs.Err()
	}

	u := &models.User{
		Username:    in.Username,
		Email:       in.Email,
		Bio:         in.Bio,
		IsStaff:     in.IsStaff,
		IsSuperuser: in.IsSuperuser,
		IsVerified:  in.IsVerified,
		IsActive:    true,
		DateJoined:  s.now(),
		Emails:      []models.EmailAddress{{Verified: in.EmailVerified, Primary: true}},
	}

	var created *models.User
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		errs, err := s.validateUser(ctx, tx, u)
		if err != nil {
			return err
		}
		if err := errs.Err(); err != nil {
			return err
		}
		u.Emails[0].Email = u.Email

		if err := tx.Users.Create(ctx, u); err != nil {
			return err
		}
		for _, name := range in.Groups {
			if err := tx.Groups.AddMember(ctx, u.ID, name); err != nil {
				return err
			}
		}
		if err := s.applyGroupRules(ctx, tx, u.ID); err != nil {
			return err
		}
		created, err = tx.Users.GetByID(ctx, u.ID)
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.Logger.InfoContext(ctx, "user created",
		slog.Uint64("user_id", uint64(created.ID)),
		slog.String("username", created.Username),
	)
	return created, nil
}

func (s *UserService) UpdateUser(ctx context.Context, id uint, in UpdateUserInput) (*models.User, error) {
	span, ctx := observability.NewSpan(ctx, "UserService.UpdateUser")
	defer span.End()

	var updated *models.User
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		u, err := tx.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		applyUserInput(u, in)

		errs, err := s.validateUser(ctx, tx, u)
		if err != nil {
			return err
		}
		if err := errs.Err(); err != nil {
			return err
		}
		if err := tx.Users.Update(ctx, u); err != nil {
			return err
		}
		if err := s.applyGroupRules(ctx, tx, u.ID); err != nil {
			return err
		}
		updated, err = tx.Users.GetByID(ctx, u.ID)
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if in.IsActive != nil {
		bumpFollowerFeeds(ctx, s.store, id)
	}
	return updated, nil
}

func applyUserInput(u *models.User, in UpdateUserInput) {
	if in.Username != nil {
		u.Username = *in.Username
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Bio != nil {
		u.Bio = *in.Bio
	}
	if in.IsStaff != nil {
		u.IsStaff = *in.IsStaff
	}
	if in.IsSuperuser != nil {
		u.IsSuperuser = *in.IsSuperuser
	}
	if in.IsVerified != nil {
		u.IsVerified = *in.IsVerified
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
}

// applyGroupRules keeps the staff invariants after a user row is written: superusers
// belong to Admins and members of any staff group are staff.
func (s *UserService) applyGroupRules(ctx context.Context, tx *repository.Store, userID uint) error {
	u, err := tx.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if u.IsSuperuser && !u.InGroup(models.GroupAdmins) {
		err := tx.Groups.AddMember(ctx, u.ID, models.GroupAdmins)
		switch {
		case models.HasCode(err, models.CodeNotFound):
			observability.Logger.ErrorContext(ctx, "superuser could not be added to the Admins group because it does not exist",
				slog.Uint64("user_id", uint64(u.ID)),
			)
		case err != nil:
			return err
		default:
			u.Groups = append(u.Groups, models.Group{Name: models.GroupAdmins})
		}
	}

	if !u.IsStaff && u.InStaffGroup() {
		u.IsStaff = true
		return tx.Users.Update(ctx, u)
	}
	return nil
}

// DeleteUser soft deletes the account by clearing IsActive.
func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	if err := s.store.Users.SetActive(ctx, id, false); err != nil {
		return err
	}
	observability.Logger.InfoContext(ctx, "user deactivated", slog.Uint64("user_id", uint64(id)))
	bumpFollowerFeeds(ctx, s.store, id)
	return nil
}

func (s *UserService) AddToGroup(ctx context.Context, id uint, group string) (*models.User, error) {
	var updated *models.User
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Groups.AddMember(ctx, id, group); err != nil {
			return err
		}
		if err := s.applyGroupRules(ctx, tx, id); err != nil {
			return err
		}
		var err error
		updated, err = tx.Users.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveFromGroup drops the membership only. IsStaff is left as it is.
// A superuser cannot leave Admins.
func (s *UserService) RemoveFromGroup(ctx context.Context, id uint, group string) (*models.User, error) {
	u, err := s.store.Users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.IsSuperuser && group == models.GroupAdmins {
		return nil, models.NewFieldValidationError("groups", errSuperuserLeavesAdmins)
	}
	if err := s.store.Groups.RemoveMember(ctx, id, group); err != nil {
		return nil, err
	}
	return s.store.Users.GetByID(ctx, id)
}

func (s *UserService) AddEmailAddress(ctx context.Context, id uint, email string, verified bool) (*models.EmailAddress, error) {
	if _, err := s.store.Users.GetByID(ctx, id); err != nil {
		return nil, err
	}

	errs := models.ValidationErrors{}
	for _, err := range validation.CheckEmail(email) {
		errs.Add("email", err.Error())
	}
	norm, ok := validation.NormalizeEmail(email)
	if ok {
		email = norm.String()
		taken, err := s.store.Users.EmailInUse(ctx, email, id)
		if err != nil {
			return nil, err
		}
		if taken {
			errs.Add("email", validation.ErrEmailInUse.Error())
		}
	}
	if !errs.Empty() {
		recordValidation("email_address", errs)
		return nil, errs.Err()
	}

	addr := &models.EmailAddress{UserID: id, Email: email, Verified: verified}
	if err := s.store.Users.AddEmailAddress(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

func (s *UserService) VerifyEmailAddress(ctx context.Context, id uint, email string) error {
	if norm, ok := validation.NormalizeEmail(email); ok {
		email = norm.String()
	}
	return s.store.Users.SetEmailVerified(ctx, id, email)
}

// GetByUsername returns the user with the exact username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := s.store.Users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, models.NewNotFoundError("User", username)
	}
	return u, nil
}

// EnsureGroups creates the staff groups that do not exist yet.
func (s *UserService) EnsureGroups(ctx context.Context) error {
	return s.store.Groups.Ensure(ctx, models.StaffGroupNames...)
}

// ListStaff returns every user flagged as staff.
func (s *UserService) ListStaff(ctx context.Context) ([]models.User, error) {
	return s.store.Users.ListStaff(ctx)
}
