package group

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("group not found")

type Group struct {
	ID        string
	Name      string
	Members   []Member
	CreatedAt time.Time
}

type Member struct {
	UserID      string
	DisplayName string
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}

	return false
}

// DisplayName returns the member's display name, falling back to the id.
func (g *Group) DisplayName(userID string) string {
	for _, m := range g.Members {
		if m.UserID == userID && m.DisplayName != "" {
			return m.DisplayName
		}
	}

	return userID
}
