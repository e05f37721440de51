package service

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"pulsifi/internal/models"
	"pulsifi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentService_CreatePulse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")

	pulse, err := env.content.CreatePulse(ctx, CreatePulseInput{CreatorID: alice.ID, Message: "hello world"})
	require.NoError(t, err)
	assert.True(t, pulse.Visible)
	assert.Equal(t, "alice", pulse.Creator.Username)

	_, err = env.content.CreatePulse(ctx, CreatePulseInput{CreatorID: alice.ID})
	assertFieldError(t, err, "message", "this field is required")

	_, err = env.content.CreatePulse(ctx, CreatePulseInput{CreatorID: 9999, Message: "orphan"})
	assertFieldError(t, err, "creator", errInvalidCreator.Error())
}

func TestContentService_CreateReply_ParentRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")

	tests := []struct {
		name   string
		parent models.ObjectRef
		field  string
		want   string
	}{
		{"user parent", models.Ref(models.ContentTypeUser, alice.ID), "parent_type", errParentType.Error()},
		{"unknown parent type", models.Ref("comment", 1), "parent_type", errParentType.Error()},
		{"missing pulse", models.Ref(models.ContentTypePulse, pulse.ID+100), models.NonFieldErrors, errParentMissing.Error()},
		{"missing reply", models.Ref(models.ContentTypeReply, 100), models.NonFieldErrors, errParentMissing.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.content.CreateReply(ctx, CreateReplyInput{CreatorID: alice.ID, Message: "hi", Parent: tt.parent})
			assertFieldError(t, err, tt.field, tt.want)
		})
	}
}

func TestContentService_CreateReply_InheritsHiddenRoot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	child := testutil.MustCreateReply(t, env.db, alice, pulse.Ref(), "child")

	require.NoError(t, env.content.DeletePulse(ctx, pulse.ID))

	reply, err := env.content.CreateReply(ctx, CreateReplyInput{CreatorID: bob.ID, Message: "late", Parent: child.Ref()})
	require.NoError(t, err)
	assert.False(t, reply.Visible)

	visible := true
	updated, err := env.content.UpdateReply(ctx, reply.ID, UpdateContentInput{Visible: &visible})
	require.NoError(t, err)
	assert.False(t, updated.Visible, "a reply under a hidden pulse cannot be shown")
}

func TestContentService_CreateReply_RateLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	other := testutil.MustCreatePulse(t, env.db, alice, "other root")

	first, err := env.content.CreateReply(ctx, CreateReplyInput{CreatorID: alice.ID, Message: "one", Parent: pulse.Ref()})
	require.NoError(t, err)

	// deeper in the same tree still counts
	_, err = env.content.CreateReply(ctx, CreateReplyInput{CreatorID: alice.ID, Message: "two", Parent: first.Ref()})
	requireCode(t, err, models.CodeValidation)

	_, err = env.content.CreateReply(ctx, CreateReplyInput{CreatorID: alice.ID, Message: "elsewhere", Parent: other.Ref()})
	require.NoError(t, err)

	env.content.now = func() time.Time { return time.Now().Add(env.rules.MinTimeBetweenReplies + time.Minute) }
	_, err = env.content.CreateReply(ctx, CreateReplyInput{CreatorID: alice.ID, Message: "two", Parent: first.Ref()})
	require.NoError(t, err)
}

func TestContentService_Traversal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	unrelated := testutil.MustCreatePulse(t, env.db, alice, "unrelated")

	//   pulse
	//   ├── a
	//   │   └── a1
	//   │       └── a1x
	//   └── b
	a := testutil.MustCreateReply(t, env.db, alice, pulse.Ref(), "a")
	b := testutil.MustCreateReply(t, env.db, alice, pulse.Ref(), "b")
	a1 := testutil.MustCreateReply(t, env.db, alice, a.Ref(), "a1")
	a1x := testutil.MustCreateReply(t, env.db, alice, a1.Ref(), "a1x")
	testutil.MustCreateReply(t, env.db, alice, unrelated.Ref(), "elsewhere")

	root, err := env.content.OriginalPulse(ctx, a1x.Ref())
	require.NoError(t, err)
	assert.Equal(t, pulse.ID, root.ID)

	root, err = env.content.OriginalPulse(ctx, pulse.Ref())
	require.NoError(t, err)
	assert.Equal(t, pulse.ID, root.ID, "a pulse is its own original pulse")

	all, err := env.content.FullDepthReplies(ctx, pulse.Ref())
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, b.ID, a1.ID, a1x.ID}, replyIDs(all), "level by level")

	sub, err := env.content.FullDepthReplies(ctx, a.Ref())
	require.NoError(t, err)
	assert.Equal(t, []uint{a1.ID, a1x.ID}, replyIDs(sub))

	leaf, err := env.content.FullDepthReplies(ctx, b.Ref())
	require.NoError(t, err)
	assert.Empty(t, leaf)

	_, err = env.content.FullDepthReplies(ctx, models.Ref(models.ContentTypeReply, 9999))
	requireCode(t, err, models.CodeNotFound)
	_, err = env.content.FullDepthReplies(ctx, alice.Ref())
	requireCode(t, err, models.CodeValidation)
}

func TestContentService_OriginalPulse_DeepChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")

	parent := pulse.Ref()
	var last *models.Reply
	for i := 0; i < 300; i++ {
		last = testutil.MustCreateReply(t, env.db, alice, parent, "deeper")
		parent = last.Ref()
	}

	root, err := env.content.OriginalPulse(ctx, last.Ref())
	require.NoError(t, err)
	assert.Equal(t, pulse.ID, root.ID)

	all, err := env.content.FullDepthReplies(ctx, pulse.Ref())
	require.NoError(t, err)
	assert.Len(t, all, 300)
}

func TestContentService_OriginalPulse_DetectsCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	a := testutil.MustCreateReply(t, env.db, alice, pulse.Ref(), "a")
	b := testutil.MustCreateReply(t, env.db, alice, a.Ref(), "b")

	// only reachable by writing the rows directly
	require.NoError(t, env.db.Model(&models.Reply{}).Where("id = ?", a.ID).
		Updates(map[string]any{"parent_type": models.ContentTypeReply, "parent_id": b.ID}).Error)

	_, err := env.content.OriginalPulse(ctx, b.Ref())
	requireCode(t, err, models.CodeIntegrity)
}

func TestContentService_UpdatePulse_CascadesVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	a := testutil.MustCreateReply(t, env.db, alice, pulse.Ref(), "a")
	a1 := testutil.MustCreateReply(t, env.db, alice, a.Ref(), "a1")
	b := testutil.MustCreateReply(t, env.db, alice, pulse.Ref(), "b")
	other := testutil.MustCreatePulse(t, env.db, alice, "other")
	untouched := testutil.MustCreateReply(t, env.db, alice, other.Ref(), "untouched")

	require.NoError(t, env.content.DeleteReply(ctx, b.ID))

	hidden := false
	updated, err := env.content.UpdatePulse(ctx, pulse.ID, UpdateContentInput{Visible: &hidden})
	require.NoError(t, err)
	assert.False(t, updated.Visible)
	for _, id := range []uint{a.ID, a1.ID, b.ID} {
		assert.False(t, replyVisible(t, env, id), "reply %d", id)
	}
	assert.True(t, replyVisible(t, env, untouched.ID))

	// restoring the pulse restores the whole tree
	shown := true
	_, err = env.content.UpdatePulse(ctx, pulse.ID, UpdateContentInput{Visible: &shown})
	require.NoError(t, err)
	for _, id := range []uint{a.ID, a1.ID, b.ID} {
		assert.True(t, replyVisible(t, env, id), "reply %d", id)
	}
}

func TestContentService_UpdatePulse_CascadeIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	good := testutil.MustCreateReply(t, env.db, alice, pulse.Ref(), "fine")
	bad := testutil.MustCreateReply(t, env.db, alice, good.Ref(), "soon empty")
	require.NoError(t, env.db.Model(&models.Reply{}).Where("id = ?", bad.ID).Update("message", "").Error)

	hidden := false
	_, err := env.content.UpdatePulse(ctx, pulse.ID, UpdateContentInput{Visible: &hidden})
	requireCode(t, err, models.CodeValidation)
	assert.Contains(t, err.Error(), "reply")

	got, err := env.content.GetPulse(ctx, pulse.ID)
	require.NoError(t, err)
	assert.True(t, got.Visible)
	assert.True(t, replyVisible(t, env, good.ID))
}

func TestContentService_DeleteReply_DoesNotCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	a := testutil.MustCreateReply(t, env.db, alice, pulse.Ref(), "a")
	a1 := testutil.MustCreateReply(t, env.db, alice, a.Ref(), "a1")

	require.NoError(t, env.content.DeleteReply(ctx, a.ID))
	assert.False(t, replyVisible(t, env, a.ID))
	assert.True(t, replyVisible(t, env, a1.ID))

	requireCode(t, env.content.DeleteReply(ctx, 9999), models.CodeNotFound)
}

func TestContentService_LatestReplyUnderSameOriginalPulse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	other := testutil.MustCreatePulse(t, env.db, alice, "other")

	older := testutil.MustCreateReply(t, env.db, bob, pulse.Ref(), "older")
	mid := testutil.MustCreateReply(t, env.db, alice, older.Ref(), "alice in between")
	newer := testutil.MustCreateReply(t, env.db, bob, mid.Ref(), "newer")
	testutil.MustCreateReply(t, env.db, bob, other.Ref(), "different tree")

	latest, err := env.content.LatestReplyUnderSameOriginalPulse(ctx, bob.ID, pulse.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	latest, err = env.content.LatestReplyUnderSameOriginalPulse(ctx, bob.ID, pulse.ID, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, older.ID, latest.ID)

	_, err = env.content.LatestReplyUnderSameOriginalPulse(ctx, alice.ID, pulse.ID, mid.ID)
	requireCode(t, err, models.CodeNotFound)

	_, err = env.content.LatestReplyUnderSameOriginalPulse(ctx, bob.ID, 9999, 0)
	requireCode(t, err, models.CodeNotFound)
}

func TestContentService_Reactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	reply := testutil.MustCreateReply(t, env.db, bob, pulse.Ref(), "reply")

	require.NoError(t, env.content.Like(ctx, alice.ID, pulse.Ref()))
	require.NoError(t, env.content.Like(ctx, bob.ID, pulse.Ref()))
	require.NoError(t, env.content.Dislike(ctx, bob.ID, pulse.Ref()))
	require.NoError(t, env.content.Dislike(ctx, alice.ID, reply.Ref()))

	liked, err := env.content.LikedBy(ctx, pulse.Ref())
	require.NoError(t, err)
	assert.Equal(t, []uint{alice.ID}, userIDs(liked))

	disliked, err := env.content.DislikedBy(ctx, pulse.Ref())
	require.NoError(t, err)
	assert.Equal(t, []uint{bob.ID}, userIDs(disliked), "a dislike moves the user out of liked_by")

	counts, err := env.content.ReactionCounts(ctx, pulse.Ref())
	require.NoError(t, err)
	assert.Equal(t, map[models.ReactionKind]int64{models.ReactionLike: 1, models.ReactionDislike: 1}, counts)

	removed, err := env.content.ClearReaction(ctx, bob.ID, pulse.Ref())
	require.NoError(t, err)
	assert.True(t, removed)

	counts, err = env.content.ReactionCounts(ctx, reply.Ref())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.ReactionDislike])
}

func TestContentService_Reactions_RejectInvalidTargets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")

	err := env.content.Like(ctx, alice.ID, alice.Ref())
	assertFieldError(t, err, "content_type", errNotReactable.Error())

	err = env.content.Dislike(ctx, alice.ID, models.Ref(models.ContentTypePulse, 9999))
	requireCode(t, err, models.CodeNotFound)

	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")
	err = env.content.Like(ctx, 9999, pulse.Ref())
	requireCode(t, err, models.CodeNotFound)
}

func TestContentService_DisplayString(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	bob := testutil.MustCreateUser(t, env.db, "bob")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "Hello world, this is long")
	reply := testutil.MustCreateReply(t, env.db, bob, pulse.Ref(), "Nice")

	got, err := env.content.DisplayString(ctx, pulse.Ref())
	require.NoError(t, err)
	assert.Equal(t, "@alice, Hello world, th", got)

	got, err = env.content.DisplayString(ctx, reply.Ref())
	require.NoError(t, err)
	assert.Equal(t, "@bob, Nice (For object - Pulse | @alice, Hello world, th)", got)

	require.NoError(t, env.content.DeleteReply(ctx, reply.ID))
	got, err = env.content.DisplayString(ctx, reply.Ref())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "@bob, "+models.StringWhenVisible(false, "Nice")+" (For object - Pulse"))
}

func TestContentService_DisplayString_TruncatesReplyChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.MustCreateUser(t, env.db, "alice")
	pulse := testutil.MustCreatePulse(t, env.db, alice, "root")

	parent := pulse.Ref()
	var last *models.Reply
	for i := 0; i < 10; i++ {
		last = testutil.MustCreateReply(t, env.db, alice, parent, "nested reply text")
		parent = last.Ref()
	}

	got, err := env.content.DisplayString(ctx, last.Ref())
	require.NoError(t, err)
	assert.Equal(t, replyDisplayLength, utf8.RuneCountInString(got))
	assert.True(t, strings.HasPrefix(got, "@alice, nested reply te (For object - Reply | @alice, "))
}

func replyVisible(t *testing.T, env *testEnv, id uint) bool {
	t.Helper()
	r, err := env.content.GetReply(context.Background(), id)
	require.NoError(t, err)
	return r.Visible
}

func replyIDs(replies []models.Reply) []uint {
	ids := make([]uint, 0, len(replies))
	for _, r := range replies {
		ids = append(ids, r.ID)
	}
	return ids
}
