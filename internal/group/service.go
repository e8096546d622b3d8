package group

import (
	"context"
	"errors"
	"fmt"
)

type Repository interface {
	GetGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context, userID string) ([]*Group, error)
	UpsertGroup(ctx context.Context, g *Group) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id string) (*Group, error) {
	return s.repo.GetGroup(ctx, id)
}

// ListForUser returns the groups userID belongs to; an empty id lists all.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Group, error) {
	return s.repo.ListGroups(ctx, userID)
}

// IsMember reports whether every given user belongs to the group.
func (s *Service) IsMember(ctx context.Context, groupID string, userIDs ...string) (bool, error) {
	g, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return false, err
	}

	for _, u := range userIDs {
		if !g.HasMember(u) {
			return false, nil
		}
	}

	return true, nil
}

// EnsureMembers creates the group if needed and adds any missing members.
// Existing members are left untouched.
func (s *Service) EnsureMembers(ctx context.Context, groupID, name string, userIDs []string) (*Group, error) {
	g, err := s.repo.GetGroup(ctx, groupID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("loading group: %w", err)
	}

	if g == nil {
		g = &Group{ID: groupID, Name: name}
	}

	changed := g.CreatedAt.IsZero()

	for _, u := range userIDs {
		if u == "" || g.HasMember(u) {
			continue
		}

		g.Members = append(g.Members, Member{UserID: u, DisplayName: u})
		changed = true
	}

	if !changed {
		return g, nil
	}

	if err := s.repo.UpsertGroup(ctx, g); err != nil {
		return nil, err
	}

	return g, nil
}
