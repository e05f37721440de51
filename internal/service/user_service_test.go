package service

import (
	"context"
	"strings"
	"testing"

	"pulsifi/internal/models"
	"pulsifi/internal/testutil"
	"pulsifi/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_CreateUser_NormalizesEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.CreateUser(ctx, CreateUserInput{
		Username: "marigold",
		Email:    "Mari.Gold+news@GoogleMail.com",
		Bio:      "gardening",
	})
	require.NoError(t, err)

	assert.Equal(t, "marigold@gmail.com", u.Email)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsStaff)
	require.Len(t, u.Emails, 1)
	assert.Equal(t, "marigold@gmail.com", u.Emails[0].Email)
	assert.True(t, u.Emails[0].Primary)
	assert.False(t, u.Emails[0].Verified)
}

func TestUserService_CreateUser_CollectsEveryViolation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.users.CreateUser(context.Background(), CreateUserInput{
		Username:   "ab",
		Email:      "not-an-email",
		Bio:        strings.Repeat("x", 201),
		IsVerified: true,
	})

	appErr := requireCode(t, err, models.CodeValidation)
	assert.ElementsMatch(t, []string{"bio", "email", "is_verified", "username"}, appErr.Fields.Fields())
	assert.Contains(t, appErr.Fields["email"], validation.ErrEmailInvalid.Error())
	assert.Contains(t, appErr.Fields["is_verified"], errUnverifiedUser)

	var count int64
	require.NoError(t, env.db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUserService_ValidateUser_UsernameRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.MustCreateUser(t, env.db, "marigold")

	tests := []struct {
		name     string
		username string
		staff    bool
		want     string
	}{
		{"custom reserved name", "reply", false, validation.ErrUsernameReserved.Error()},
		{"too similar to an existing user", "marigolds", false, validation.ErrUsernameSimilar.Error()},
		{"restricted name for a non-staff user", "pulsifi_fan", false, validation.ErrUsernameRestricted.Error()},
		{"invalid characters", "bad name!", false, validation.ErrUsernameCharacters.Error()},
		{"too long", strings.Repeat("q", 31), false, "at most 30 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &models.User{Username: tt.username, Email: "someone@corp-mail.io", IsStaff: tt.staff, IsActive: true}
			errs, err := env.users.ValidateUser(ctx, u)
			require.NoError(t, err)
			require.True(t, errs.Has("username"), "expected a username error, got %v", errs)

			found := false
			for _, msg := range errs["username"] {
				if strings.Contains(msg, tt.want) {
					found = true
				}
			}
			assert.True(t, found, "%q not in %v", tt.want, errs["username"])
		})
	}
}

func TestUserService_ValidateUser_RestrictedNameQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.users.CreateUser(ctx, CreateUserInput{
		Username: "pulsifi_team",
		Email:    "team@corp-mail.io",
		IsStaff:  true,
	})
	require.NoError(t, err)
	assert.True(t, first.IsStaff)

	// the quota of one restricted name is now used up
	errs, err := env.users.ValidateUser(ctx, &models.User{
		Username: "ops_pulsifi",
		Email:    "ops@corp-mail.io",
		IsStaff:  true,
	})
	require.NoError(t, err)
	assert.Contains(t, errs["username"], validation.ErrUsernameRestricted.Error())

	// revalidating the holder itself does not count against it
	errs, err = env.users.ValidateUser(ctx, first)
	require.NoError(t, err)
	assert.True(t, errs.Empty(), "unexpected errors: %v", errs)
}

func TestUserService_ValidateUser_EmailRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.MustCreateUser(t, env.db, "rosalind", func(u *models.User) { u.Email = "joann@corp-mail.io" })

	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"same address", "joann@corp-mail.io", validation.ErrEmailInUse.Error()},
		{"same address with dots and alias", "jo.ann+promo@corp-mail.io", validation.ErrEmailInUse.Error()},
		{"same mailbox under another subdomain", "joann@mail.corp-mail.com", validation.ErrEmailInUse.Error()},
		{"restricted domain", "someone@pulsifi.io", validation.ErrEmailRestricted.Error()},
		{"disposable provider", "someone@tempmail.com", validation.ErrEmailFree.Error()},
		{"example domain", "someone@example.com", validation.ErrEmailExample.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := env.users.ValidateUser(ctx, &models.User{Username: "thaddeus", Email: tt.email})
			require.NoError(t, err)
			assert.Contains(t, errs["email"], tt.want)
			assert.Len(t, errs["email"], 1, "duplicate messages: %v", errs["email"])
		})
	}
}

func TestUserService_CreateUser_SuperuserJoinsAdmins(t *testing.T) {
	env := newTestEnv(t)

	u, err := env.users.CreateUser(context.Background(), CreateUserInput{
		Username:    "wilhelmina",
		Email:       "wil@corp-mail.io",
		IsSuperuser: true,
	})
	require.NoError(t, err)

	assert.True(t, u.IsStaff)
	assert.True(t, u.InGroup(models.GroupAdmins))
	assert.True(t, u.IsAdmin())
}

func TestUserService_CreateUser_SuperuserWithoutAdminsGroup(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Where("name = ?", models.GroupAdmins).Delete(&models.Group{}).Error)

	u, err := env.users.CreateUser(context.Background(), CreateUserInput{
		Username:    "wilhelmina",
		Email:       "wil@corp-mail.io",
		IsSuperuser: true,
	})
	require.NoError(t, err)
	assert.True(t, u.IsStaff)
	assert.Empty(t, u.Groups)
}

func TestUserService_RemoveFromGroup_SuperuserKeepsAdmins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.CreateUser(ctx, CreateUserInput{
		Username:    "wilhelmina",
		Email:       "wil@corp-mail.io",
		IsSuperuser: true,
		Groups:      []string{models.GroupModerators},
	})
	require.NoError(t, err)

	_, err = env.users.RemoveFromGroup(ctx, u.ID, models.GroupAdmins)
	appErr := requireCode(t, err, models.CodeValidation)
	assert.Equal(t, []string{errSuperuserLeavesAdmins}, appErr.Fields["groups"])

	// other staff groups can still be left
	updated, err := env.users.RemoveFromGroup(ctx, u.ID, models.GroupModerators)
	require.NoError(t, err)
	assert.False(t, updated.InGroup(models.GroupModerators))

	reloaded, err := env.users.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsSuperuser)
	assert.True(t, reloaded.IsStaff)
	assert.True(t, reloaded.InGroup(models.GroupAdmins))
}

func TestUserService_StaffGroupMembersBecomeStaff(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	moderator, err := env.users.CreateUser(ctx, CreateUserInput{
		Username: "valentina",
		Email:    "val@corp-mail.io",
		Groups:   []string{models.GroupModerators},
	})
	require.NoError(t, err)
	assert.True(t, moderator.IsStaff)
	assert.True(t, moderator.InGroup(models.GroupModerators))

	plain := testutil.MustCreateUser(t, env.db, "xiomara")
	promoted, err := env.users.AddToGroup(ctx, plain.ID, models.GroupAdmins)
	require.NoError(t, err)
	assert.True(t, promoted.IsStaff)

	demoted, err := env.users.RemoveFromGroup(ctx, plain.ID, models.GroupAdmins)
	require.NoError(t, err)
	assert.False(t, demoted.InGroup(models.GroupAdmins))
	assert.True(t, demoted.IsStaff)
}

func TestUserService_CreateUser_RejectsUnknownGroup(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.users.CreateUser(context.Background(), CreateUserInput{
		Username: "valentina",
		Email:    "val@corp-mail.io",
		Groups:   []string{"Wizards"},
	})
	requireCode(t, err, models.CodeValidation)
}

func TestUserService_Verification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.CreateUser(ctx, CreateUserInput{Username: "ulrich", Email: "ulrich@corp-mail.io"})
	require.NoError(t, err)

	verified := true
	_, err = env.users.UpdateUser(ctx, u.ID, UpdateUserInput{IsVerified: &verified})
	assertFieldError(t, err, "is_verified", errUnverifiedUser)

	addr, err := env.users.AddEmailAddress(ctx, u.ID, "U.lrich@other-mail.io", false)
	require.NoError(t, err)
	assert.Equal(t, "ulrich@other-mail.io", addr.Email)

	require.NoError(t, env.users.VerifyEmailAddress(ctx, u.ID, "ulrich@other-mail.io"))

	updated, err := env.users.UpdateUser(ctx, u.ID, UpdateUserInput{IsVerified: &verified})
	require.NoError(t, err)
	assert.True(t, updated.IsVerified)
	assert.Len(t, updated.Emails, 2)
}

func TestUserService_AddEmailAddress_InUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.MustCreateUser(t, env.db, "rosalind", func(u *models.User) { u.Email = "rosa@corp-mail.io" })
	other := testutil.MustCreateUser(t, env.db, "yusuf")

	_, err := env.users.AddEmailAddress(ctx, other.ID, "rosa@corp-mail.io", true)
	assertFieldError(t, err, "email", validation.ErrEmailInUse.Error())

	err = env.users.VerifyEmailAddress(ctx, other.ID, "nobody@corp-mail.io")
	requireCode(t, err, models.CodeNotFound)
}

func TestUserService_UpdateUser_IgnoresOwnRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.CreateUser(ctx, CreateUserInput{Username: "zebulon", Email: "zeb@corp-mail.io"})
	require.NoError(t, err)

	bio := "updated"
	updated, err := env.users.UpdateUser(ctx, u.ID, UpdateUserInput{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Bio)
	assert.Equal(t, "zeb@corp-mail.io", updated.Email)
}

func TestUserService_DeleteUser_IsSoft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := testutil.MustCreateUser(t, env.db, "quentin")

	require.NoError(t, env.users.DeleteUser(ctx, u.ID))

	got, err := env.users.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, models.StringWhenVisible(false, "@quentin"), env.users.DisplayString(got))

	requireCode(t, env.users.DeleteUser(ctx, 9999), models.CodeNotFound)
}
