package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrNotMember = errors.New("not a member of this group")

// MembershipChecker is satisfied by *group.Service.
type MembershipChecker interface {
	IsMember(ctx context.Context, groupID string, userIDs ...string) (bool, error)
}

type contextKey string

const (
	userIDKey contextKey = "user_id"
	roleKey   contextKey = "role"
)

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, userID string, role Role) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// GetUserID returns the authenticated user, or "" if there is none.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func IsAdmin(ctx context.Context) bool {
	role, _ := ctx.Value(roleKey).(Role)
	return role == RoleAdmin
}

// CheckGroupAccess returns ErrNotMember unless the caller belongs to the
// group. Admins may access every group.
func CheckGroupAccess(ctx context.Context, members MembershipChecker, groupID string) error {
	if IsAdmin(ctx) {
		return nil
	}

	userID := GetUserID(ctx)
	if userID == "" {
		return ErrNotMember
	}

	ok, err := members.IsMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("checking membership: %w", err)
	}

	if !ok {
		return ErrNotMember
	}

	return nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's user in the request context.
func RequireAuth(m *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, ErrMissingToken)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				unauthorized(w, ErrInvalidToken)
				return
			}

			claims, err := m.Validate(token)
			if err != nil {
				unauthorized(w, ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.UserID, claims.Role)))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="splitledger"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
