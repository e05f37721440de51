package repository

import (
	"context"

	"pulsifi/internal/cache"
	"pulsifi/internal/database"
	"pulsifi/internal/observability"

	"gorm.io/gorm"
)

// inClauseChunk bounds the number of bind variables in one IN (...) list.
const inClauseChunk = 500

var queryMetrics = observability.NewDatabaseMetrics()

func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.GetReadDB(); db != nil {
		return db
	}
	return primary
}

// commitHooks holds side effects of a transaction until it commits.
// A nil *commitHooks runs them at once.
type commitHooks struct {
	fns []func(context.Context)
}

func (h *commitHooks) do(ctx context.Context, fn func(context.Context)) {
	if h == nil {
		fn(ctx)
		return
	}
	h.fns = append(h.fns, fn)
}

func (h *commitHooks) run(ctx context.Context) {
	for _, fn := range h.fns {
		fn(ctx)
	}
	h.fns = nil
}

func (h *commitHooks) invalidateUser(ctx context.Context, userID uint) {
	h.do(ctx, func(ctx context.Context) { cache.InvalidateUser(ctx, userID) })
}

// Store groups the repositories that share one connection or one transaction.
type Store struct {
	db    *gorm.DB
	hooks *commitHooks

	Users     UserRepository
	Groups    GroupRepository
	Follows   FollowRepository
	Content   ContentRepository
	Reactions ReactionRepository
	Reports   ReportRepository
}

// NewStore returns a Store whose reads may be served by the read replica.
func NewStore(db *gorm.DB) *Store {
	return newStore(db, readDB(db), nil)
}

// newStore binds the repositories to db. A non-nil hooks marks a transaction:
// user reads skip the cache and invalidations wait for the commit.
func newStore(db, read *gorm.DB, hooks *commitHooks) *Store {
	return &Store{
		db:        db,
		hooks:     hooks,
		Users:     &userRepository{db: db, read: read, cached: hooks == nil, hooks: hooks},
		Groups:    &groupRepository{db: db, hooks: hooks},
		Follows:   &followRepository{db: db, read: read},
		Content:   &contentRepository{db: db, read: read},
		Reactions: &reactionRepository{db: db, read: read},
		Reports:   &reportRepository{db: db, read: read},
	}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a Store bound to a single database transaction.
// Reads inside fn go to the primary and bypass the cache. Cache invalidations
// queued by fn run once the outermost transaction commits and are dropped on rollback.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	hooks, outermost := s.hooks, s.hooks == nil
	if outermost {
		hooks = &commitHooks{}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newStore(tx, tx, hooks))
	})
	if err != nil || !outermost {
		return err
	}
	hooks.run(ctx)
	return nil
}

func chunkIDs(ids []uint, size int) [][]uint {
	var chunks [][]uint
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
