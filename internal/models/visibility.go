package models

import "fmt"

// Visibility is a participant's view of a conversation.
type Visibility string

const (
	VisibilityActive   Visibility = "active"
	VisibilityArchived Visibility = "archived"
	VisibilityDeleted  Visibility = "deleted"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityActive, VisibilityArchived, VisibilityDeleted:
		return true
	}
	return false
}

// Archive hides an active conversation. A deleted conversation stays deleted.
func (v Visibility) Archive() Visibility {
	if v == VisibilityActive {
		return VisibilityArchived
	}
	return v
}

// Restore brings an archived conversation back to the inbox.
func (v Visibility) Restore() Visibility {
	if v == VisibilityArchived {
		return VisibilityActive
	}
	return v
}

func (v Visibility) Delete() Visibility {
	return VisibilityDeleted
}

// Revisit is applied when a participant opens the thread again.
func (v Visibility) Revisit() Visibility {
	if v == VisibilityDeleted {
		return VisibilityActive
	}
	return v
}

// Resurface is applied to both participants whenever a new message lands.
func (v Visibility) Resurface() Visibility {
	return VisibilityActive
}

// VisibleIn reports whether a conversation in this state belongs to view.
func (v Visibility) VisibleIn(view View) bool {
	switch view {
	case ViewInbox:
		return v == VisibilityActive
	case ViewArchived:
		return v == VisibilityArchived
	}
	return false
}

// View partitions a user's conversation list.
type View string

const (
	ViewInbox    View = "inbox"
	ViewArchived View = "archived"
)

func ParseView(s string) (View, error) {
	switch View(s) {
	case "", ViewInbox:
		return ViewInbox, nil
	case ViewArchived:
		return ViewArchived, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// Visibility returns the participant state that backs the view.
func (v View) Visibility() Visibility {
	if v == ViewArchived {
		return VisibilityArchived
	}
	return VisibilityActive
}
