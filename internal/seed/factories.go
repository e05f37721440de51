// Package seed creates development and demo data through the service layer, so
// every account, content and moderation rule applies to seeded rows too.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pulsifi/internal/models"
	"pulsifi/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

// maxAttempts bounds retries when a generated username or e-mail is rejected.
const maxAttempts = 8

// maxBioLength matches the bio column, counted in runes.
const maxBioLength = 200

// Factory builds domain entities with fake or fixture data and persists them
// through the services.
type Factory struct {
	svc      *service.Services
	fixtures *Fixtures
	faker    *gofakeit.Faker

	nextUsername int
}

// NewFactory returns a Factory. A nil fixtures value generates everything; seed 0 picks a random seed.
func NewFactory(svc *service.Services, fixtures *Fixtures, seed int64) *Factory {
	if fixtures == nil {
		fixtures = &Fixtures{}
	}
	return &Factory{svc: svc, fixtures: fixtures, faker: gofakeit.New(seed)}
}

func (f *Factory) username() (string, error) {
	if len(f.fixtures.Usernames) > 0 {
		if f.nextUsername >= len(f.fixtures.Usernames) {
			return "", &NotEnoughTestDataError{Field: "usernames"}
		}
		name := f.fixtures.Usernames[f.nextUsername]
		f.nextUsername++
		return name, nil
	}
	name := strings.ToLower(f.faker.Username())
	if len(name) > 24 {
		name = name[:24]
	}
	return fmt.Sprintf("%s%d", name, f.faker.Number(10, 99)), nil
}

func (f *Factory) pick(values []string, generate func() string) string {
	if len(values) == 0 {
		return generate()
	}
	return values[f.faker.Number(0, len(values)-1)]
}

func (f *Factory) email(username string) string {
	domain := f.pick(f.fixtures.EmailDomains, f.faker.DomainName)
	return strings.ToLower(username) + "@" + domain
}

func (f *Factory) message() string {
	return f.pick(f.fixtures.Messages, func() string { return f.faker.Sentence(12) })
}

// retryable reports whether err only rejects the generated identity fields.
func retryable(err error) bool {
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != models.CodeValidation {
		return false
	}
	for _, field := range appErr.Fields.Fields() {
		if field != "username" && field != "email" {
			return false
		}
	}
	return true
}

// CreateUser creates an active account. Overrides run after the generated
// values are filled in. Rejected usernames or e-mails are replaced and retried.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*service.CreateUserInput)) (*models.User, error) {
	var lastErr error
	for range maxAttempts {
		username, err := f.username()
		if err != nil {
			return nil, err
		}
		in := service.CreateUserInput{
			Username: username,
			Email:    f.email(username),
			Bio:      f.pick(f.fixtures.Bios, func() string { return f.faker.Sentence(8) }),
		}
		in.Bio = models.Truncate(in.Bio, maxBioLength)
		for _, override := range overrides {
			override(&in)
		}

		u, err := f.svc.Users.CreateUser(ctx, in)
		if err == nil {
			return u, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("create user after %d attempts: %w", maxAttempts, lastErr)
}

// CreateModerator creates an account in the Moderators group.
func (f *Factory) CreateModerator(ctx context.Context) (*models.User, error) {
	return f.CreateUser(ctx, func(in *service.CreateUserInput) {
		in.Groups = append(in.Groups, models.GroupModerators)
	})
}

func (f *Factory) CreatePulse(ctx context.Context, creator *models.User, overrides ...func(*service.CreatePulseInput)) (*models.Pulse, error) {
	in := service.CreatePulseInput{CreatorID: creator.ID, Message: f.message()}
	for _, override := range overrides {
		override(&in)
	}
	return f.svc.Content.CreatePulse(ctx, in)
}

// CreateReplyTree adds up to count replies under pulse, each attached to the
// pulse or to a random earlier reply. Every reply has a different author so
// the per-pulse reply interval never rejects one.
func (f *Factory) CreateReplyTree(ctx context.Context, pulse *models.Pulse, participants []models.User, count int) ([]models.Reply, error) {
	order := f.shuffled(len(participants))
	if count > len(order) {
		count = len(order)
	}

	parents := []models.ObjectRef{pulse.Ref()}
	replies := make([]models.Reply, 0, count)
	for _, i := range order[:count] {
		parent := parents[f.faker.Number(0, len(parents)-1)]
		reply, err := f.svc.Content.CreateReply(ctx, service.CreateReplyInput{
			CreatorID: participants[i].ID,
			Message:   f.message(),
			Parent:    parent,
		})
		if err != nil {
			return replies, err
		}
		replies = append(replies, *reply)
		parents = append(parents, reply.Ref())
	}
	return replies, nil
}

// Follow makes user follow up to n random candidates other than itself.
func (f *Factory) Follow(ctx context.Context, user *models.User, candidates []models.User, n int) (int, error) {
	targets := make([]uint, 0, n)
	for _, i := range f.shuffled(len(candidates)) {
		if len(targets) == n {
			break
		}
		if candidates[i].ID != user.ID {
			targets = append(targets, candidates[i].ID)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}
	if err := f.svc.Follows.AddFollowing(ctx, user.ID, targets...); err != nil {
		return 0, err
	}
	return len(targets), nil
}

// React likes or dislikes target on behalf of user, with likes three times as likely.
func (f *Factory) React(ctx context.Context, user *models.User, target models.ObjectRef) error {
	if f.faker.Number(1, 4) == 1 {
		return f.svc.Content.Dislike(ctx, user.ID, target)
	}
	return f.svc.Content.Like(ctx, user.ID, target)
}

// CreateReport files a report with a random category.
func (f *Factory) CreateReport(ctx context.Context, reporter *models.User, target models.ObjectRef) (*models.Report, error) {
	return f.svc.Moderation.CreateReport(ctx, service.CreateReportInput{
		ReporterID: reporter.ID,
		Target:     target,
		Reason:     f.pick(f.fixtures.ReportReasons, func() string { return f.faker.Sentence(10) }),
		Category:   models.ReportCategories[f.faker.Number(0, len(models.ReportCategories)-1)],
	})
}

func (f *Factory) shuffled(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	f.faker.ShuffleInts(idx)
	return idx
}
