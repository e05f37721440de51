package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"pulsifi/internal/models"
	"pulsifi/internal/observability"
	"pulsifi/internal/repository"
	"pulsifi/internal/validation"
)

const defaultSummaryLimit = 20

// ReportedUserSummary is a row of the per-user moderation queue.
type ReportedUserSummary struct {
	ReportedUserID uint        `json:"reported_user_id"`
	ReportCount    int64       `json:"report_count"`
	LatestReportAt time.Time   `json:"latest_report_at"`
	User           models.User `json:"user"`
}

type CreateReportInput struct {
	ReporterID uint                  `json:"reporter_id"`
	Target     models.ObjectRef      `json:"target"`
	Reason     string                `json:"reason"`
	Category   models.ReportCategory `json:"category"`
}

// ModerationService files reports and routes them to moderators.
type ModerationService struct {
	store    *repository.Store
	resolver *ObjectResolver
	pick     func(n int) int
}

// NewModerationService returns a new ModerationService that assigns moderators uniformly at random.
func NewModerationService(store *repository.Store, resolver *ObjectResolver) *ModerationService {
	return &ModerationService{store: store, resolver: resolver, pick: rand.IntN}
}

// rejection is the first report rule a report breaks.
type rejection struct {
	reason  string
	field   string
	message string
}

// ModeratorPool returns the active members of the Moderators group.
func (s *ModerationService) ModeratorPool(ctx context.Context) ([]models.User, error) {
	return s.store.Users.ListByGroup(ctx, models.GroupModerators, true)
}

// CanCreateReport fails with a precondition error when nobody could be assigned a report.
func (s *ModerationService) CanCreateReport(ctx context.Context) error {
	return canCreateReport(ctx, s.store)
}

func canCreateReport(ctx context.Context, store *repository.Store) error {
	pool, err := store.Users.ListByGroup(ctx, models.GroupModerators, true)
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		observability.ReportsRejected.WithLabelValues("no_moderators").Inc()
		return models.NewPreconditionError(models.ErrNoModerators)
	}
	return nil
}

func (s *ModerationService) CreateReport(ctx context.Context, in CreateReportInput) (*models.Report, error) {
	span, ctx := observability.NewSpan(ctx, "ModerationService.CreateReport")
	defer span.End()
	span.AddAttributes(observability.ObjectAttributes("report.target", in.Target)...)

	report := &models.Report{
		ReporterID:   in.ReporterID,
		ReportedType: in.Target.Type,
		ReportedID:   in.Target.ID,
		Reason:       in.Reason,
		Category:     in.Category,
		Status:       models.ReportStatusInProgress,
	}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := canCreateReport(ctx, tx); err != nil {
			return err
		}
		if err := s.validateReport(ctx, tx, report); err != nil {
			return err
		}
		return tx.Reports.Create(ctx, report)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.ReportsAssigned.Inc()
	observability.Logger.InfoContext(ctx, "report created",
		slog.Uint64("report_id", uint64(report.ID)),
		slog.String("target", report.Target().String()),
		slog.Uint64("moderator_id", uint64(*report.AssignedModeratorID)),
	)
	return report, nil
}

// ValidateReport runs the report rules against r, assigning a moderator when it has none.
func (s *ModerationService) ValidateReport(ctx context.Context, r *models.Report) error {
	return s.validateReport(ctx, s.store, r)
}

func (s *ModerationService) validateReport(ctx context.Context, store *repository.Store, r *models.Report) error {
	errs := validation.Struct(r)

	rej, err := s.checkReportRules(ctx, store, r)
	if err != nil {
		return err
	}
	switch {
	case rej != nil:
		errs.Add(rej.field, rej.message)
		observability.ReportsRejected.WithLabelValues(rej.reason).Inc()
	case !errs.Empty():
		observability.ReportsRejected.WithLabelValues("fields").Inc()
	}
	recordValidation("report", errs)
	return errs.Err()
}

// checkReportRules applies the report rules in precedence order and stops at the first one broken.
func (s *ModerationService) checkReportRules(ctx context.Context, store *repository.Store, r *models.Report) (*rejection, error) {
	target := r.Target()
	switch target.Type {
	case models.ContentTypeUser, models.ContentTypePulse, models.ContentTypeReply:
	default:
		return &rejection{"invalid_target", "reported_type", errUnknownObjectType.Error()}, nil
	}

	if _, err := store.Users.GetByID(ctx, r.ReporterID); err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return &rejection{"missing_reporter", "reporter", errInvalidCreator.Error()}, nil
		}
		return nil, err
	}

	obj, err := resolve(ctx, store, target)
	if models.HasCode(err, models.CodeNotFound) {
		return &rejection{"missing_target", models.NonFieldErrors, "reported object must be a valid object"}, nil
	}
	if err != nil {
		return nil, err
	}

	var creatorID uint
	switch v := obj.(type) {
	case models.Content:
		creator, err := store.Users.GetByID(ctx, v.GetCreatorID())
		if err != nil {
			return nil, err
		}
		if creator.IsAdmin() {
			return &rejection{"admin_content", "reported_id", "you cannot report content created by an admin"}, nil
		}
		if creator.ID == r.ReporterID {
			return &rejection{"own_content", "reported_id", "you cannot report your own content"}, nil
		}
		creatorID = creator.ID
	case *models.User:
		if v.IsAdmin() {
			return &rejection{"admin_target", "reported_id", "admins cannot be reported"}, nil
		}
		if v.ID == r.ReporterID {
			return &rejection{"self_report", "reported_id", "you cannot report yourself"}, nil
		}
	}

	pool, err := store.Users.ListByGroup(ctx, models.GroupModerators, true)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		observability.ReportsRejected.WithLabelValues("no_moderators").Inc()
		return nil, models.NewPreconditionError(models.ErrNoModerators)
	}
	if len(pool) == 1 {
		sole := pool[0].ID
		switch {
		case target.Type == models.ContentTypeUser && target.ID == sole:
			return &rejection{"sole_moderator", "reported_id", "the only moderator cannot be reported"}, nil
		case r.ReporterID == sole:
			return &rejection{"sole_moderator", "reporter", "the only moderator cannot create reports"}, nil
		case creatorID == sole:
			return &rejection{"sole_moderator", "reported_id", "content created by the only moderator cannot be reported"}, nil
		}
	}

	if r.AssignedModeratorID == nil {
		var targetUserID uint
		if target.Type == models.ContentTypeUser {
			targetUserID = target.ID
		}
		moderator := s.chooseModerator(pool, r.ReporterID, targetUserID, creatorID)
		r.AssignedModeratorID = &moderator.ID
		r.AssignedModerator = &moderator
		return nil, nil
	}
	for _, m := range pool {
		if m.ID == *r.AssignedModeratorID {
			return nil, nil
		}
	}
	return &rejection{"moderator_not_in_pool", "assigned_moderator", "assigned moderator must be an active member of the Moderators group"}, nil
}

// chooseModerator picks uniformly among the pool members with no stake in the report,
// falling back to the whole pool when every member has one.
// The reporter, the reported user and the reported content's creator are never
// picked from a pool that has anyone else, so the draw is not uniform over the
// full pool whenever one of them moderates.
func (s *ModerationService) chooseModerator(pool []models.User, conflicted ...uint) models.User {
	candidates := make([]models.User, 0, len(pool))
	for _, m := range pool {
		stake := false
		for _, id := range conflicted {
			if id != 0 && m.ID == id {
				stake = true
				break
			}
		}
		if !stake {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		candidates = pool
	}
	return candidates[s.pick(len(candidates))]
}

// UpdateReportStatus closes an in-progress report as rejected or completed.
func (s *ModerationService) UpdateReportStatus(ctx context.Context, id uint, status models.ReportStatus) (*models.Report, error) {
	var updated *models.Report
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		report, err := tx.Reports.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !status.Valid() {
			return models.NewFieldValidationError("status", fmt.Sprintf("%q is not a valid choice", status))
		}
		if report.Status != models.ReportStatusInProgress || status == models.ReportStatusInProgress {
			return models.NewFieldValidationError("status",
				fmt.Sprintf("a report cannot move from %s to %s", report.Status.Label(), status.Label()))
		}

		report.Status = status
		if err := s.validateReport(ctx, tx, report); err != nil {
			return err
		}
		if err := tx.Reports.Update(ctx, report); err != nil {
			return err
		}
		updated = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.Logger.InfoContext(ctx, "report status changed",
		slog.Uint64("report_id", uint64(updated.ID)),
		slog.String("status", string(updated.Status)),
	)
	return updated, nil
}

// AssignPending gives a moderator to every in-progress report that lacks one and
// returns how many were assigned. Reports that no longer pass validation are skipped.
func (s *ModerationService) AssignPending(ctx context.Context) (int, error) {
	pending, err := s.store.Reports.ListUnassigned(ctx)
	if err != nil {
		return 0, err
	}

	assigned := 0
	for _, p := range pending {
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			report, err := tx.Reports.GetByID(ctx, p.ID)
			if err != nil {
				return err
			}
			if report.AssignedModeratorID != nil {
				return nil
			}
			if err := s.validateReport(ctx, tx, report); err != nil {
				return err
			}
			if err := tx.Reports.Update(ctx, report); err != nil {
				return err
			}
			assigned++
			observability.ReportsAssigned.Inc()
			return nil
		})
		switch {
		case models.HasCode(err, models.CodePrecondition):
			return assigned, err
		case models.HasCode(err, models.CodeValidation):
			observability.Logger.WarnContext(ctx, "skipping report that no longer validates",
				slog.Uint64("report_id", uint64(p.ID)),
				slog.String("error", err.Error()),
			)
		case err != nil:
			return assigned, err
		}
	}
	return assigned, nil
}

func (s *ModerationService) AssignedReports(ctx context.Context, moderatorID uint) ([]models.Report, error) {
	return s.store.Reports.ListByModerator(ctx, moderatorID, "")
}

func (s *ModerationService) ReportsAbout(ctx context.Context, ref models.ObjectRef) ([]models.Report, error) {
	return s.store.Reports.ListAbout(ctx, ref)
}

// ReportedUserSummary returns the users with in-progress reports, most reported first.
func (s *ModerationService) ReportedUserSummary(ctx context.Context, limit, offset int) ([]ReportedUserSummary, error) {
	if limit <= 0 {
		limit = defaultSummaryLimit
	}

	rows, err := s.store.Reports.CountReportedUsers(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	latestIDs := make([]uint, 0, len(rows))
	for _, row := range rows {
		latestIDs = append(latestIDs, row.LatestReportID)
	}
	latest, err := s.store.Reports.GetByIDs(ctx, latestIDs)
	if err != nil {
		return nil, err
	}
	createdByID := make(map[uint]time.Time, len(latest))
	for _, r := range latest {
		createdByID[r.ID] = r.CreatedAt
	}

	resp := make([]ReportedUserSummary, 0, len(rows))
	for _, row := range rows {
		summary := ReportedUserSummary{
			ReportedUserID: row.ReportedID,
			ReportCount:    row.ReportCount,
			LatestReportAt: createdByID[row.LatestReportID],
		}
		u, err := s.store.Users.GetByID(ctx, row.ReportedID)
		switch {
		case err == nil:
			summary.User = *u
		case !models.HasCode(err, models.CodeNotFound):
			return nil, err
		}
		resp = append(resp, summary)
	}
	return resp, nil
}

// DisplayString renders the report for moderation listings.
func (s *ModerationService) DisplayString(ctx context.Context, r *models.Report) (string, error) {
	reporter := r.Reporter
	if reporter.ID == 0 {
		u, err := s.store.Users.GetByID(ctx, r.ReporterID)
		if err != nil {
			return "", err
		}
		reporter = *u
	}

	target, err := s.resolver.Display(ctx, r.Target())
	if err != nil {
		return "", err
	}

	moderator := "None"
	switch {
	case r.AssignedModerator != nil:
		moderator = r.AssignedModerator.String()
	case r.AssignedModeratorID != nil:
		u, err := s.store.Users.GetByID(ctx, *r.AssignedModeratorID)
		if err != nil {
			return "", err
		}
		moderator = u.String()
	}

	return fmt.Sprintf("%s, %s, %s (For object - %s | %s)(Assigned Moderator - %s)",
		reporter.String(), r.Category, r.Status.Label(), r.ReportedType.Label(), target, moderator), nil
}
