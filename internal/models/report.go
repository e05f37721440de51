package models

import "time"

// ReportCategory is the closed set of report reasons.
type ReportCategory string

const (
	CategorySpam                 ReportCategory = "SPM"
	CategorySexual               ReportCategory = "SEX"
	CategoryHate                 ReportCategory = "HAT"
	CategoryViolence             ReportCategory = "VIO"
	CategoryIllegalGoods         ReportCategory = "ILG"
	CategoryBullying             ReportCategory = "BUL"
	CategoryIntellectualProperty ReportCategory = "INP"
	CategorySelfInjury           ReportCategory = "INJ"
	CategoryScam                 ReportCategory = "SCM"
	CategoryFalseInformation     ReportCategory = "FLS"
)

// ReportCategories lists every category in display order.
var ReportCategories = []ReportCategory{
	CategorySpam,
	CategorySexual,
	CategoryHate,
	CategoryViolence,
	CategoryIllegalGoods,
	CategoryBullying,
	CategoryIntellectualProperty,
	CategorySelfInjury,
	CategoryScam,
	CategoryFalseInformation,
}

var categoryLabels = map[ReportCategory]string{
	CategorySpam:                 "Spam",
	CategorySexual:               "Nudity or sexual activity",
	CategoryHate:                 "Hate speech or symbols",
	CategoryViolence:             "Violence or dangerous organisations",
	CategoryIllegalGoods:         "Sale of illegal or regulated goods",
	CategoryBullying:             "Bullying or harassment",
	CategoryIntellectualProperty: "Intellectual property violation or impersonation",
	CategorySelfInjury:           "Suicide or self-injury",
	CategoryScam:                 "Scam or fraud",
	CategoryFalseInformation:     "False or misleading information",
}

// Valid reports whether c is a known category.
func (c ReportCategory) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display name of the category.
func (c ReportCategory) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// ReportStatus tracks a report through moderation.
type ReportStatus string

const (
	ReportStatusInProgress ReportStatus = "PR"
	ReportStatusRejected   ReportStatus = "RE"
	ReportStatusCompleted  ReportStatus = "CM"
)

// Label returns the display name of the status.
func (s ReportStatus) Label() string {
	switch s {
	case ReportStatusInProgress:
		return "In Progress"
	case ReportStatusRejected:
		return "Rejected"
	case ReportStatusCompleted:
		return "Completed"
	default:
		return string(s)
	}
}

// Valid reports whether s is a known status.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusInProgress, ReportStatusRejected, ReportStatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusRejected || s == ReportStatusCompleted
}

// Report asks a moderator to review a user, pulse or reply.
type Report struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	ReporterID          uint           `gorm:"not null;index" json:"reporter_id"`
	Reporter            User           `gorm:"foreignKey:ReporterID" json:"reporter"`
	ReportedType        ContentType    `gorm:"size:16;not null;index:idx_reports_target,priority:1" json:"reported_type"`
	ReportedID          uint           `gorm:"not null;index:idx_reports_target,priority:2" json:"reported_id"`
	Reason              string         `gorm:"type:text;not null" json:"reason" validate:"required"`
	Category            ReportCategory `gorm:"size:3;not null" json:"category" validate:"report_category"`
	Status              ReportStatus   `gorm:"size:2;not null;index" json:"status" validate:"report_status"`
	AssignedModeratorID *uint          `gorm:"index" json:"assigned_moderator_id"`
	AssignedModerator   *User          `gorm:"foreignKey:AssignedModeratorID" json:"assigned_moderator,omitempty"`
	CreatedAt           time.Time      `gorm:"<-:create" json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Target returns the reference to the reported object.
func (r *Report) Target() ObjectRef { return Ref(r.ReportedType, r.ReportedID) }
