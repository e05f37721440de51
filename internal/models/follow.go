package models

import "time"

// Constraint names guarding the follow graph.
const (
	ConstraintFollowOnce    = "follow_once"
	ConstraintNotFollowSelf = "not_follow_self"
)

// Follow is a directed edge of the follow graph.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID uint      `gorm:"not null;uniqueIndex:follow_once,priority:1;check:not_follow_self,follower_id <> followed_id" json:"follower_id"`
	FollowedID uint      `gorm:"not null;uniqueIndex:follow_once,priority:2;index" json:"followed_id"`
	CreatedAt  time.Time `gorm:"<-:create" json:"created_at"`

	// Relationships
	Follower User `gorm:"foreignKey:FollowerID" json:"-"`
	Followed User `gorm:"foreignKey:FollowedID" json:"-"`
}

// TableName specifies the table name for GORM
func (Follow) TableName() string {
	return "follows"
}
