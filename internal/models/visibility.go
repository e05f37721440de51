package models

import (
	"fmt"
	"strings"
)

// ContentType discriminates the targets of polymorphic references.
type ContentType string

const (
	ContentTypeUser  ContentType = "user"
	ContentTypePulse ContentType = "pulse"
	ContentTypeReply ContentType = "reply"
)

// Label is the human readable name of the type.
func (t ContentType) Label() string {
	switch t {
	case ContentTypeUser:
		return "User"
	case ContentTypePulse:
		return "Pulse"
	case ContentTypeReply:
		return "Reply"
	default:
		return string(t)
	}
}

// ObjectRef points at a row of one of several tables, resolved by Type.
type ObjectRef struct {
	Type ContentType `json:"type"`
	ID   uint        `json:"id"`
}

// Ref builds an ObjectRef.
func Ref(t ContentType, id uint) ObjectRef {
	return ObjectRef{Type: t, ID: id}
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// IsContent reports whether the reference targets a Pulse or a Reply.
func (r ObjectRef) IsContent() bool {
	return r.Type == ContentTypePulse || r.Type == ContentTypeReply
}

// Reportable is implemented by every entity that is soft deleted and can be reported.
type Reportable interface {
	Ref() ObjectRef
	IsVisible() bool
	SetVisible(visible bool)
}

// Content is the shared behavior of Pulse and Reply.
type Content interface {
	Reportable
	GetCreatorID() uint
	GetMessage() string
}

const strikethrough = '̶'

// StringWhenVisible returns s unchanged when visible, otherwise struck through character by character.
func StringWhenVisible(visible bool, s string) string {
	if visible {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) * 3)
	for _, r := range s {
		b.WriteRune(r)
		b.WriteRune(strikethrough)
	}
	return b.String()
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n < 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
