package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pulsifi/internal/models"
	"pulsifi/internal/repository"
	"pulsifi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func mustCreateModerator(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := testutil.MustCreateUser(t, db, username, func(u *models.User) { u.IsStaff = true })
	testutil.MustJoinGroup(t, db, u, models.GroupModerators)
	return u
}

// mustCreateReport inserts a report without running the report rules or assigning a moderator.
func mustCreateReport(t *testing.T, db *gorm.DB, reporter *models.User, target models.ObjectRef) *models.Report {
	t.Helper()
	r := &models.Report{
		ReporterID:   reporter.ID,
		ReportedType: target.Type,
		ReportedID:   target.ID,
		Reason:       "seed",
		Category:     models.CategorySpam,
		Status:       models.ReportStatusInProgress,
	}
	require.NoError(t, db.Omit(clause.Associations).Create(r).Error)
	return r
}

func TestModerationService_CreateReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	moderator := mustCreateModerator(t, env.db, "moderatrix")
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")

	report, err := env.moderation.CreateReport(ctx, CreateReportInput{
		ReporterID: alice.ID,
		Target:     bob.Ref(),
		Reason:     "spamming every pulse",
		Category:   models.CategorySpam,
	})
	require.NoError(t, err)
	require.NotNil(t, report.AssignedModeratorID)
	assert.Equal(t, moderator.ID, *report.AssignedModeratorID)
	assert.Equal(t, models.ReportStatusInProgress, report.Status)

	assigned, err := env.moderation.AssignedReports(ctx, moderator.ID)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, report.ID, assigned[0].ID)

	about, err := env.moderation.ReportsAbout(ctx, bob.Ref())
	require.NoError(t, err)
	assert.Len(t, about, 1)
}

func TestModerationService_CreateReport_NoModerators(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")

	_, err := env.moderation.CreateReport(ctx, CreateReportInput{
		ReporterID: alice.ID,
		Target:     bob.Ref(),
		Reason:     "rude",
		Category:   models.CategoryBullying,
	})
	requireCode(t, err, models.CodePrecondition)
	assert.True(t, errors.Is(err, models.ErrNoModerators))

	var count int64
	require.NoError(t, env.db.Model(&models.Report{}).Count(&count).Error)
	assert.Zero(t, count)

	// deactivated moderators do not count
	moderator := mustCreateModerator(t, env.db, "moderatrix")
	require.NoError(t, env.users.DeleteUser(ctx, moderator.ID))
	requireCode(t, env.moderation.CanCreateReport(ctx), models.CodePrecondition)
}

func TestModerationService_CreateReport_Rules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	moderator := mustCreateModerator(t, env.db, "moderatrix")
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")
	admin := testutil.MustCreateUser(t, env.db, "adelaide", func(u *models.User) {
		u.IsStaff = true
		u.IsSuperuser = true
	})

	adminPulse := testutil.MustCreatePulse(t, env.db, admin, "official notice")
	alicePulse := testutil.MustCreatePulse(t, env.db, alice, "mine")
	moderatorPulse := testutil.MustCreatePulse(t, env.db, moderator, "be nice")
	bobReply := testutil.MustCreateReply(t, env.db, bob, alicePulse.Ref(), "rude reply")

	tests := []struct {
		name     string
		reporter uint
		target   models.ObjectRef
		reason   string
		category models.ReportCategory
		field    string
		want     string
	}{
		{"unknown target type", alice.ID, models.Ref("comment", 1), "x", models.CategorySpam, "reported_type", errUnknownObjectType.Error()},
		{"missing reporter", 9999, bob.Ref(), "x", models.CategorySpam, "reporter", errInvalidCreator.Error()},
		{"missing target", alice.ID, models.Ref(models.ContentTypePulse, 9999), "x", models.CategorySpam, models.NonFieldErrors, "reported object must be a valid object"},
		{"admin content outranks own content", admin.ID, adminPulse.Ref(), "x", models.CategorySpam, "reported_id", "you cannot report content created by an admin"},
		{"own content", alice.ID, alicePulse.Ref(), "x", models.CategorySpam, "reported_id", "you cannot report your own content"},
		{"admin user", alice.ID, admin.Ref(), "x", models.CategorySpam, "reported_id", "admins cannot be reported"},
		{"self report", alice.ID, alice.Ref(), "x", models.CategorySpam, "reported_id", "you cannot report yourself"},
		{"sole moderator as target", alice.ID, moderator.Ref(), "x", models.CategorySpam, "reported_id", "the only moderator cannot be reported"},
		{"sole moderator as reporter", moderator.ID, bobReply.Ref(), "x", models.CategorySpam, "reporter", "the only moderator cannot create reports"},
		{"content by sole moderator", alice.ID, moderatorPulse.Ref(), "x", models.CategorySpam, "reported_id", "content created by the only moderator cannot be reported"},
		{"empty reason", alice.ID, bobReply.Ref(), "", models.CategorySpam, "reason", "this field is required"},
		{"unknown category", alice.ID, bobReply.Ref(), "x", "XXX", "category", `"XXX" is not a valid choice`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.moderation.CreateReport(ctx, CreateReportInput{
				ReporterID: tt.reporter,
				Target:     tt.target,
				Reason:     tt.reason,
				Category:   tt.category,
			})
			assertFieldError(t, err, tt.field, tt.want)
		})
	}

	report, err := env.moderation.CreateReport(ctx, CreateReportInput{
		ReporterID: alice.ID,
		Target:     bobReply.Ref(),
		Reason:     "rude",
		Category:   models.CategoryBullying,
	})
	require.NoError(t, err)
	assert.Equal(t, moderator.ID, *report.AssignedModeratorID)
}

func TestModerationService_CreateReport_SkipsConflictedModerators(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := mustCreateModerator(t, env.db, "moderatrix")
	second := mustCreateModerator(t, env.db, "overseer")
	alice := testutil.MustCreateUser(t, env.db, "alice")
	firstPulse := testutil.MustCreatePulse(t, env.db, first, "keep it civil")

	env.moderation.pick = func(int) int { return 0 }

	tests := []struct {
		name     string
		reporter uint
		target   models.ObjectRef
		want     uint
	}{
		{"reporter is a moderator", first.ID, alice.Ref(), second.ID},
		{"target is a moderator", alice.ID, first.Ref(), second.ID},
		{"content by a moderator", alice.ID, firstPulse.Ref(), second.ID},
		{"target is the other moderator", alice.ID, second.Ref(), first.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := env.moderation.CreateReport(ctx, CreateReportInput{
				ReporterID: tt.reporter,
				Target:     tt.target,
				Reason:     "needs review",
				Category:   models.CategoryScam,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, *report.AssignedModeratorID)
		})
	}
}

func TestModerationService_ChooseModerator(t *testing.T) {
	pool := []models.User{{ID: 1}, {ID: 2}, {ID: 3}}

	var gotN int
	svc := &ModerationService{pick: func(n int) int {
		gotN = n
		return n - 1
	}}

	assert.Equal(t, uint(3), svc.chooseModerator(pool, 0, 0, 0).ID)
	assert.Equal(t, 3, gotN)

	assert.Equal(t, uint(2), svc.chooseModerator(pool, 3, 0, 1).ID)
	assert.Equal(t, 1, gotN)

	// everybody has a stake, so anybody will do
	assert.Equal(t, uint(2), svc.chooseModerator(pool[:2], 1, 2).ID)
	assert.Equal(t, 2, gotN)
}

func TestModerationService_CanCreateReport(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name    string
		pool    []models.User
		err     error
		wantErr error
	}{
		{"has moderators", []models.User{{ID: 7, IsActive: true}}, nil, nil},
		{"empty pool", nil, nil, models.ErrNoModerators},
		{"storage failure", nil, boom, boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := noopUserRepo()
			users.listByGroupFn = func(_ context.Context, group string, activeOnly bool) ([]models.User, error) {
				assert.Equal(t, models.GroupModerators, group)
				assert.True(t, activeOnly)
				return tt.pool, tt.err
			}
			svc := NewModerationService(&repository.Store{Users: users}, nil)

			err := svc.CanCreateReport(context.Background())
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestModerationService_UpdateReportStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateModerator(t, env.db, "moderatrix")
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")

	report, err := env.moderation.CreateReport(ctx, CreateReportInput{
		ReporterID: alice.ID,
		Target:     bob.Ref(),
		Reason:     "impersonating me",
		Category:   models.CategoryIntellectualProperty,
	})
	require.NoError(t, err)

	_, err = env.moderation.UpdateReportStatus(ctx, report.ID, models.ReportStatusInProgress)
	requireCode(t, err, models.CodeValidation)

	_, err = env.moderation.UpdateReportStatus(ctx, report.ID, "XX")
	assertFieldError(t, err, "status", `"XX" is not a valid choice`)

	done, err := env.moderation.UpdateReportStatus(ctx, report.ID, models.ReportStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusCompleted, done.Status)

	_, err = env.moderation.UpdateReportStatus(ctx, report.ID, models.ReportStatusRejected)
	assertFieldError(t, err, "status", "a report cannot move from Completed to Rejected")

	_, err = env.moderation.UpdateReportStatus(ctx, 9999, models.ReportStatusRejected)
	requireCode(t, err, models.CodeNotFound)
}

func TestModerationService_UpdateReportStatus_ModeratorLeftPool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := mustCreateModerator(t, env.db, "moderatrix")
	mustCreateModerator(t, env.db, "overseer")
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")
	env.moderation.pick = func(int) int { return 0 }

	report, err := env.moderation.CreateReport(ctx, CreateReportInput{
		ReporterID: alice.ID,
		Target:     bob.Ref(),
		Reason:     "scam links",
		Category:   models.CategoryScam,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, *report.AssignedModeratorID)

	_, err = env.users.RemoveFromGroup(ctx, first.ID, models.GroupModerators)
	require.NoError(t, err)

	_, err = env.moderation.UpdateReportStatus(ctx, report.ID, models.ReportStatusRejected)
	assertFieldError(t, err, "assigned_moderator", "assigned moderator must be an active member of the Moderators group")
}

func TestModerationService_ValidateReport_KeepsAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, name := range []string{"moderatrix", "overseer", "arbiter"} {
		mustCreateModerator(t, env.db, name)
	}
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")

	report, err := env.moderation.CreateReport(ctx, CreateReportInput{
		ReporterID: alice.ID,
		Target:     bob.Ref(),
		Reason:     "spamming every pulse",
		Category:   models.CategorySpam,
	})
	require.NoError(t, err)
	require.NotNil(t, report.AssignedModeratorID)
	assigned := *report.AssignedModeratorID

	for i := range 50 {
		require.NoError(t, env.moderation.ValidateReport(ctx, report))
		require.Equal(t, assigned, *report.AssignedModeratorID, "validation %d", i)

		stored, err := env.store.Reports.GetByID(ctx, report.ID)
		require.NoError(t, err)
		require.NoError(t, env.moderation.ValidateReport(ctx, stored))
		require.Equal(t, assigned, *stored.AssignedModeratorID, "reloaded validation %d", i)
	}
}

func TestModerationService_ValidateReport_RejectsModeratorOutsidePool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := mustCreateModerator(t, env.db, "moderatrix")
	mustCreateModerator(t, env.db, "overseer")
	mustCreateModerator(t, env.db, "arbiter")
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")
	env.moderation.pick = func(int) int { return 0 }

	report, err := env.moderation.CreateReport(ctx, CreateReportInput{
		ReporterID: alice.ID,
		Target:     bob.Ref(),
		Reason:     "scam links",
		Category:   models.CategoryScam,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, *report.AssignedModeratorID)

	require.NoError(t, env.users.DeleteUser(ctx, first.ID))

	for range 3 {
		err = env.moderation.ValidateReport(ctx, report)
		assertFieldError(t, err, "assigned_moderator", "assigned moderator must be an active member of the Moderators group")
		assert.Equal(t, first.ID, *report.AssignedModeratorID, "a rejected report is never re-assigned")
	}
}

func TestModerationService_AssignPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")

	valid := mustCreateReport(t, env.db, alice, bob.Ref())
	mustCreateReport(t, env.db, alice, alice.Ref())

	_, err := env.moderation.AssignPending(ctx)
	requireCode(t, err, models.CodePrecondition)

	moderator := mustCreateModerator(t, env.db, "moderatrix")
	assigned, err := env.moderation.AssignPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, assigned, "the self report is skipped")

	got, err := env.store.Reports.GetByID(ctx, valid.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssignedModeratorID)
	assert.Equal(t, moderator.ID, *got.AssignedModeratorID)

	assigned, err = env.moderation.AssignPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, assigned)
}

func TestModerationService_ReportedUserSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")
	carol := testutil.MustCreateUser(t, env.db, "carol")
	dave := testutil.MustCreateUser(t, env.db, "dave")
	pulse := testutil.MustCreatePulse(t, env.db, dave, "not a user report")

	mustCreateReport(t, env.db, alice, dave.Ref())
	mustCreateReport(t, env.db, alice, bob.Ref())
	latest := mustCreateReport(t, env.db, carol, bob.Ref())
	mustCreateReport(t, env.db, alice, pulse.Ref())
	closed := mustCreateReport(t, env.db, bob, carol.Ref())
	require.NoError(t, env.db.Model(closed).Update("status", models.ReportStatusRejected).Error)

	summary, err := env.moderation.ReportedUserSummary(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	assert.Equal(t, bob.ID, summary[0].ReportedUserID)
	assert.Equal(t, int64(2), summary[0].ReportCount)
	assert.Equal(t, "bob", summary[0].User.Username)
	assert.WithinDuration(t, latest.CreatedAt, summary[0].LatestReportAt, time.Second)

	assert.Equal(t, dave.ID, summary[1].ReportedUserID)
	assert.Equal(t, int64(1), summary[1].ReportCount)

	page, err := env.moderation.ReportedUserSummary(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, dave.ID, page[0].ReportedUserID)
}

func TestModerationService_DisplayString(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateModerator(t, env.db, "moderatrix")
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")

	report, err := env.moderation.CreateReport(ctx, CreateReportInput{
		ReporterID: alice.ID,
		Target:     bob.Ref(),
		Reason:     "spam",
		Category:   models.CategorySpam,
	})
	require.NoError(t, err)

	loaded, err := env.store.Reports.GetByID(ctx, report.ID)
	require.NoError(t, err)
	got, err := env.moderation.DisplayString(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, "@alice, SPM, In Progress (For object - User | @bob)(Assigned Moderator - @moderatrix)", got)

	unassigned := mustCreateReport(t, env.db, bob, alice.Ref())
	got, err = env.moderation.DisplayString(ctx, unassigned)
	require.NoError(t, err)
	assert.Equal(t, "@bob, SPM, In Progress (For object - User | @alice)(Assigned Moderator - None)", got)
}

func TestObjectResolver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	reply := testutil.MustCreateReply(t, env.db, alice, pulse.Ref(), "child")

	for _, ref := range []models.ObjectRef{alice.Ref(), pulse.Ref(), reply.Ref()} {
		obj, err := env.resolver.Resolve(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, ref, obj.Ref())
		assert.True(t, obj.IsVisible())
	}

	obj, err := env.resolver.Resolve(ctx, models.Ref(models.ContentTypeReply, 9999))
	requireCode(t, err, models.CodeNotFound)
	assert.Nil(t, obj)

	_, err = env.resolver.Resolve(ctx, models.Ref("comment", 1))
	assertFieldError(t, err, "type", errUnknownObjectType.Error())

	require.NoError(t, env.resolver.MarkDeleted(ctx, pulse.Ref()))
	assert.False(t, replyVisible(t, env, reply.ID), "deleting a pulse hides its replies")

	require.NoError(t, env.resolver.MarkDeleted(ctx, alice.Ref()))
	obj, err = env.resolver.Resolve(ctx, alice.Ref())
	require.NoError(t, err)
	assert.False(t, obj.IsVisible())

	display, err := env.resolver.Display(ctx, alice.Ref())
	require.NoError(t, err)
	assert.Equal(t, models.StringWhenVisible(false, "@alice"), display)
}
