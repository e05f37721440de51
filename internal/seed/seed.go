package seed

import (
	"context"
	"fmt"
	"log"

	"pulsifi/internal/models"
	"pulsifi/internal/service"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers          int
	NumModerators     int
	NumPulses         int
	RepliesPerPulse   int
	FollowsPerUser    int
	ReactionsPerPulse int
	NumReports        int
	ShouldClean       bool
	RandomSeed        int64
	Fixtures          *Fixtures
}

// DefaultOptions is a small community that exercises every feature.
func DefaultOptions() Options {
	return Options{
		NumUsers:          20,
		NumModerators:     2,
		NumPulses:         40,
		RepliesPerPulse:   4,
		FollowsPerUser:    5,
		ReactionsPerPulse: 3,
		NumReports:        6,
	}
}

// Result counts what a seeding run created.
type Result struct {
	Users          int
	Moderators     int
	Pulses         int
	Replies        int
	Follows        int
	Reactions      int
	Reports        int
	SkippedReports int
}

// Seeder populates a database through the services.
type Seeder struct {
	db      *gorm.DB
	svc     *service.Services
	opts    Options
	factory *Factory
}

func NewSeeder(db *gorm.DB, svc *service.Services, opts Options) *Seeder {
	return &Seeder{
		db:      db,
		svc:     svc,
		opts:    opts,
		factory: NewFactory(svc, opts.Fixtures, opts.RandomSeed),
	}
}

// Factory exposes the seeder's factory for ad hoc additions.
func (s *Seeder) Factory() *Factory {
	return s.factory
}

// Run seeds users, the follow graph, pulses with reply trees, reactions and reports.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	log.Printf("🌱 Starting database seeding with %d users and %d pulses...", s.opts.NumUsers, s.opts.NumPulses)

	if s.opts.ShouldClean {
		if err := clearData(s.db); err != nil {
			return nil, fmt.Errorf("clear existing data: %w", err)
		}
	}
	if err := s.svc.Users.EnsureGroups(ctx); err != nil {
		return nil, fmt.Errorf("ensure staff groups: %w", err)
	}

	res := &Result{}
	moderators := make([]models.User, 0, s.opts.NumModerators)
	for range s.opts.NumModerators {
		m, err := s.factory.CreateModerator(ctx)
		if err != nil {
			return res, fmt.Errorf("create moderator: %w", err)
		}
		moderators = append(moderators, *m)
	}
	res.Moderators = len(moderators)

	users := make([]models.User, 0, s.opts.NumUsers)
	for range s.opts.NumUsers {
		u, err := s.factory.CreateUser(ctx)
		if err != nil {
			return res, fmt.Errorf("create user: %w", err)
		}
		users = append(users, *u)
	}
	res.Users = len(users)
	log.Printf("✓ %d users and %d moderators created", res.Users, res.Moderators)

	everyone := append(append([]models.User{}, users...), moderators...)
	if len(everyone) == 0 {
		return res, nil
	}

	for i := range users {
		n, err := s.factory.Follow(ctx, &users[i], everyone, s.opts.FollowsPerUser)
		if err != nil {
			return res, fmt.Errorf("follow: %w", err)
		}
		res.Follows += n
	}

	var targets []models.ObjectRef
	for i := range s.opts.NumPulses {
		creator := &everyone[i%len(everyone)]
		pulse, err := s.factory.CreatePulse(ctx, creator)
		if err != nil {
			return res, fmt.Errorf("create pulse: %w", err)
		}
		res.Pulses++
		targets = append(targets, pulse.Ref())

		replies, err := s.factory.CreateReplyTree(ctx, pulse, everyone, s.opts.RepliesPerPulse)
		res.Replies += len(replies)
		if err != nil {
			return res, fmt.Errorf("create replies: %w", err)
		}
		for _, r := range replies {
			targets = append(targets, r.Ref())
		}

		for _, j := range s.factory.shuffled(len(everyone))[:min(s.opts.ReactionsPerPulse, len(everyone))] {
			if err := s.factory.React(ctx, &everyone[j], pulse.Ref()); err != nil {
				return res, fmt.Errorf("react: %w", err)
			}
			res.Reactions++
		}
	}
	log.Printf("✓ %d pulses, %d replies, %d follows, %d reactions created", res.Pulses, res.Replies, res.Follows, res.Reactions)

	if err := s.seedReports(ctx, users, targets, res); err != nil {
		return res, err
	}

	log.Println("🎉 Database seeding completed successfully!")
	return res, nil
}

// seedReports files reports against random users and content. Reports the
// moderation rules reject are counted and skipped.
func (s *Seeder) seedReports(ctx context.Context, reporters []models.User, content []models.ObjectRef, res *Result) error {
	if s.opts.NumReports == 0 || len(reporters) == 0 {
		return nil
	}
	if err := s.svc.Moderation.CanCreateReport(ctx); err != nil {
		log.Printf("⚠️  Skipping reports: %v", err)
		return nil
	}

	for i := range s.opts.NumReports {
		reporter := &reporters[s.factory.faker.Number(0, len(reporters)-1)]
		target := reporters[(i+1)%len(reporters)].Ref()
		if i%2 == 1 && len(content) > 0 {
			target = content[s.factory.faker.Number(0, len(content)-1)]
		}

		_, err := s.factory.CreateReport(ctx, reporter, target)
		switch {
		case err == nil:
			res.Reports++
		case models.HasCode(err, models.CodeValidation):
			res.SkippedReports++
		default:
			return fmt.Errorf("create report: %w", err)
		}
	}
	log.Printf("✓ %d reports filed (%d rejected by moderation rules)", res.Reports, res.SkippedReports)
	return nil
}

// Seed runs a Seeder with opts.
func Seed(ctx context.Context, db *gorm.DB, svc *service.Services, opts Options) (*Result, error) {
	return NewSeeder(db, svc, opts).Run(ctx)
}

func clearData(db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE reports, reactions, replies, pulses, follows, email_addresses, user_groups, users RESTART IDENTITY CASCADE`).Error
	}
	for _, table := range []string{"reports", "reactions", "replies", "pulses", "follows", "email_addresses", "user_groups", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}
