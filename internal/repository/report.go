package repository

import (
	"context"

	"pulsifi/internal/models"
	"pulsifi/internal/observability"

	"gorm.io/gorm"
)

// ReportedUserCount aggregates the in-progress reports filed against one user.
type ReportedUserCount struct {
	ReportedID     uint
	ReportCount    int64
	LatestReportID uint
}

// ReportRepository defines persistence operations for moderation reports.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id uint) (*models.Report, error)
	Update(ctx context.Context, report *models.Report) error
	ListByModerator(ctx context.Context, moderatorID uint, status models.ReportStatus) ([]models.Report, error)
	ListAbout(ctx context.Context, target models.ObjectRef) ([]models.Report, error)
	ListUnassigned(ctx context.Context) ([]models.Report, error)
	CountReportedUsers(ctx context.Context, limit, offset int) ([]ReportedUserCount, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Report, error)
}

type reportRepository struct {
	db   *gorm.DB
	read *gorm.DB
}

var reportLog = observability.NewRepoLogger("reports")

// NewReportRepository returns a new ReportRepository implementation.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db, read: readDB(db)}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	if err := r.db.WithContext(ctx).Omit("Reporter", "AssignedModerator").Create(report).Error; err != nil {
		reportLog.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	reportLog.LogCreate(ctx, map[string]any{"report_id": report.ID, "target": report.Target().String()})
	return nil
}

func (r *reportRepository) GetByID(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).Preload("Reporter").Preload("AssignedModerator").First(&report, id).Error; err != nil {
		return nil, notFoundOr(err, "Report", id)
	}
	return &report, nil
}

func (r *reportRepository) Update(ctx context.Context, report *models.Report) error {
	if err := r.db.WithContext(ctx).Omit("Reporter", "AssignedModerator").Save(report).Error; err != nil {
		reportLog.LogError(ctx, err, "update")
		return models.NewInternalError(err)
	}
	reportLog.LogUpdate(ctx, map[string]any{"report_id": report.ID, "status": report.Status})
	return nil
}

// ListByModerator returns the reports assigned to moderatorID, newest first.
// An empty status matches every status.
func (r *reportRepository) ListByModerator(ctx context.Context, moderatorID uint, status models.ReportStatus) ([]models.Report, error) {
	q := r.read.WithContext(ctx).Where("assigned_moderator_id = ?", moderatorID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var reports []models.Report
	if err := q.Preload("Reporter").Order("created_at DESC, id DESC").Find(&reports).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reports, nil
}

func (r *reportRepository) ListAbout(ctx context.Context, target models.ObjectRef) ([]models.Report, error) {
	var reports []models.Report
	if err := r.read.WithContext(ctx).
		Where("reported_type = ? AND reported_id = ?", target.Type, target.ID).
		Preload("Reporter").
		Preload("AssignedModerator").
		Order("created_at DESC, id DESC").
		Find(&reports).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reports, nil
}

// ListUnassigned returns in-progress reports that carry no moderator.
func (r *reportRepository) ListUnassigned(ctx context.Context) ([]models.Report, error) {
	var reports []models.Report
	if err := r.db.WithContext(ctx).
		Where("assigned_moderator_id IS NULL AND status = ?", models.ReportStatusInProgress).
		Order("id ASC").
		Find(&reports).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reports, nil
}

// CountReportedUsers groups in-progress user reports by reported user, most reported first.
func (r *reportRepository) CountReportedUsers(ctx context.Context, limit, offset int) ([]ReportedUserCount, error) {
	var rows []ReportedUserCount
	if err := r.read.WithContext(ctx).
		Table("reports").
		Select("reported_id, COUNT(*) AS report_count, MAX(id) AS latest_report_id").
		Where("status = ? AND reported_type = ?", models.ReportStatusInProgress, models.ContentTypeUser).
		Group("reported_id").
		Order("report_count DESC, latest_report_id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return rows, nil
}

func (r *reportRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Report, error) {
	var reports []models.Report
	for _, chunk := range chunkIDs(ids, inClauseChunk) {
		var batch []models.Report
		if err := r.read.WithContext(ctx).Where("id IN ?", chunk).Find(&batch).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		reports = append(reports, batch...)
	}
	return reports, nil
}
