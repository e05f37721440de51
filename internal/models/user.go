package models

import "time"

// Staff group names.
const (
	GroupModerators = "Moderators"
	GroupAdmins     = "Admins"
)

// StaffGroupNames are the groups whose members are always staff.
var StaffGroupNames = []string{GroupModerators, GroupAdmins}

// User is a pulsifi account. IsActive doubles as its visibility flag.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Username    string         `gorm:"size:30;uniqueIndex;not null" json:"username"`
	Email       string         `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Bio         string         `gorm:"size:200" json:"bio" validate:"max=200"`
	IsVerified  bool           `gorm:"not null" json:"is_verified"`
	IsStaff     bool           `gorm:"not null" json:"is_staff"`
	IsSuperuser bool           `gorm:"not null" json:"is_superuser"`
	IsActive    bool           `gorm:"not null;index" json:"is_active"`
	DateJoined  time.Time      `gorm:"not null;<-:create" json:"date_joined"`
	LastLogin   *time.Time     `json:"last_login,omitempty"`
	Groups      []Group        `gorm:"many2many:user_groups" json:"groups,omitempty"`
	Emails      []EmailAddress `gorm:"foreignKey:UserID" json:"email_addresses,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Ref implements Reportable.
func (u *User) Ref() ObjectRef { return Ref(ContentTypeUser, u.ID) }

// IsVisible implements Reportable.
func (u *User) IsVisible() bool { return u.IsActive }

// SetVisible implements Reportable.
func (u *User) SetVisible(visible bool) { u.IsActive = visible }

// String renders the user as a handle, struck through when inactive.
func (u *User) String() string {
	return StringWhenVisible(u.IsActive, "@"+u.Username)
}

// InGroup reports whether the loaded Groups contain name.
func (u *User) InGroup(name string) bool {
	for _, g := range u.Groups {
		if g.Name == name {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user is a superuser or a member of Admins.
func (u *User) IsAdmin() bool {
	return u.IsSuperuser || u.InGroup(GroupAdmins)
}

// InStaffGroup reports whether the user belongs to any staff group.
func (u *User) InStaffGroup() bool {
	for _, name := range StaffGroupNames {
		if u.InGroup(name) {
			return true
		}
	}
	return false
}

// HasVerifiedEmail reports whether any loaded email address is verified.
func (u *User) HasVerifiedEmail() bool {
	for _, e := range u.Emails {
		if e.Verified {
			return true
		}
	}
	return false
}

// Group is a named role.
type Group struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:150;uniqueIndex;not null" json:"name"`
}

// EmailAddress is an address attached to a user, independently verified.
type EmailAddress struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   uint   `gorm:"not null;index" json:"user_id"`
	Email    string `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Verified bool   `gorm:"not null" json:"verified"`
	Primary  bool   `gorm:"not null" json:"primary"`
}

// TableName specifies the table name for GORM
func (EmailAddress) TableName() string {
	return "email_addresses"
}
