package models

import "time"

// Pulse is a root post. Its original pulse is itself.
type Pulse struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatorID uint      `gorm:"not null;index" json:"creator_id"`
	Creator   User      `gorm:"foreignKey:CreatorID" json:"creator"`
	Message   string    `gorm:"type:text;not null" json:"message" validate:"required"`
	Visible   bool      `gorm:"column:is_visible;not null" json:"is_visible"`
	CreatedAt time.Time `gorm:"not null;index;<-:create" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Pulse) Ref() ObjectRef { return Ref(ContentTypePulse, p.ID) }
func (p *Pulse) IsVisible() bool { return p.Visible }
func (p *Pulse) SetVisible(visible bool) { p.Visible = visible }
func (p *Pulse) GetCreatorID() uint { return p.CreatorID }
func (p *Pulse) GetMessage() string { return p.Message }

// Constraint names guarding replies and reactions.
const (
	ConstraintReplyParentType = "reply_parent_type"
	ConstraintReplyNotSelf    = "reply_not_self"
	ConstraintReactionOnce    = "reaction_once"
)

// Reply is attached to a Pulse or another Reply through (ParentType, ParentID).
type Reply struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	CreatorID  uint        `gorm:"not null;index:idx_replies_creator" json:"creator_id"`
	Creator    User        `gorm:"foreignKey:CreatorID" json:"creator"`
	Message    string      `gorm:"type:text;not null" json:"message" validate:"required"`
	Visible    bool        `gorm:"column:is_visible;not null" json:"is_visible"`
	ParentType ContentType `gorm:"size:16;not null;index:idx_replies_parent,priority:1;check:reply_parent_type,parent_type IN ('pulse', 'reply')" json:"parent_type"`
	ParentID   uint        `gorm:"not null;index:idx_replies_parent,priority:2;check:reply_not_self,parent_type <> 'reply' OR parent_id <> id" json:"parent_id"`
	CreatedAt  time.Time   `gorm:"not null;index:idx_replies_creator;<-:create" json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (r *Reply) Ref() ObjectRef { return Ref(ContentTypeReply, r.ID) }
func (r *Reply) IsVisible() bool { return r.Visible }
func (r *Reply) SetVisible(visible bool) { r.Visible = visible }
func (r *Reply) GetCreatorID() uint { return r.CreatorID }
func (r *Reply) GetMessage() string { return r.Message }

// Parent returns the reference to the replied-to content.
func (r *Reply) Parent() ObjectRef { return Ref(r.ParentType, r.ParentID) }

// ReactionKind is the membership set a reaction places its user in.
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

// Reaction places one user in either the liked_by or the disliked_by set of a content item.
// The unique index makes the two sets mutually exclusive.
type Reaction struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	UserID      uint         `gorm:"not null;uniqueIndex:reaction_once,priority:1" json:"user_id"`
	ContentType ContentType  `gorm:"size:16;not null;uniqueIndex:reaction_once,priority:2;index:idx_reactions_target,priority:1" json:"content_type"`
	ObjectID    uint         `gorm:"not null;uniqueIndex:reaction_once,priority:3;index:idx_reactions_target,priority:2" json:"object_id"`
	Kind        ReactionKind `gorm:"size:8;not null" json:"kind"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
