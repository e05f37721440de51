package service

import (
	"errors"
	"os"
	"testing"

	"pulsifi/internal/cache"
	"pulsifi/internal/config"
	"pulsifi/internal/models"
	"pulsifi/internal/repository"
	"pulsifi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	cache.SetClient(nil)
	os.Exit(m.Run())
}

type testEnv struct {
	db         *gorm.DB
	store      *repository.Store
	rules      config.Rules
	users      *UserService
	follows    *FollowService
	content    *ContentService
	resolver   *ObjectResolver
	moderation *ModerationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	testutil.MustCreateGroups(t, db)

	rules := config.DefaultRules()
	svc := NewServices(db, rules)

	return &testEnv{
		db:         db,
		store:      svc.Store,
		rules:      rules,
		users:      svc.Users,
		follows:    svc.Follows,
		content:    svc.Content,
		resolver:   svc.Resolver,
		moderation: svc.Moderation,
	}
}

func requireCode(t *testing.T, err error, code string) *models.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, "unexpected error: %v", err)
	return appErr
}

// assertFieldError asserts that err is a validation error carrying message under field.
func assertFieldError(t *testing.T, err error, field, message string) {
	t.Helper()
	appErr := requireCode(t, err, models.CodeValidation)
	assert.Contains(t, appErr.Fields[field], message, "fields: %v", appErr.Fields)
}
