package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitledger/internal/auth"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := auth.NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("alice", auth.RoleAdmin)
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := auth.NewJWTManager("test-secret", time.Hour)

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := auth.NewJWTManager("other", time.Hour).Generate("alice", auth.RoleMember)
		require.NoError(t, err)

		_, err = m.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		token, err := auth.NewJWTManager("test-secret", -time.Minute).Generate("alice", auth.RoleMember)
		require.NoError(t, err)

		_, err = m.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &auth.Claims{UserID: "alice"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("BadInput", func(t *testing.T) {
		_, err := m.Generate("", auth.RoleMember)
		assert.Error(t, err)

		_, err = m.Generate("alice", "root")
		assert.Error(t, err)
	})
}

func TestRequireAuth(t *testing.T) {
	m := auth.NewJWTManager("test-secret", time.Hour)
	token, err := m.Generate("bob", auth.RoleMember)
	require.NoError(t, err)

	var gotUser string
	var gotAdmin bool

	h := auth.RequireAuth(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = auth.GetUserID(r.Context())
		gotAdmin = auth.IsAdmin(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "Valid", header: "Bearer " + token, wantStatus: http.StatusNoContent},
		{name: "Missing", header: "", wantStatus: http.StatusUnauthorized},
		{name: "WrongScheme", header: "Basic " + token, wantStatus: http.StatusUnauthorized},
		{name: "Garbage", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, "bob", gotUser)
				assert.False(t, gotAdmin)
			} else {
				assert.Empty(t, gotUser)
			}
		})
	}
}

type membersFunc func(groupID, userID string) (bool, error)

func (f membersFunc) IsMember(_ context.Context, groupID string, userIDs ...string) (bool, error) {
	for _, u := range userIDs {
		ok, err := f(groupID, u)
		if err != nil || !ok {
			return ok, err
		}
	}

	return true, nil
}

func TestCheckGroupAccess(t *testing.T) {
	members := membersFunc(func(groupID, userID string) (bool, error) {
		if groupID == "broken" {
			return false, errors.New("db down")
		}

		return groupID == "trip" && userID == "alice", nil
	})

	tests := []struct {
		name    string
		ctx     context.Context
		group   string
		wantErr error
		anyErr  bool
	}{
		{name: "Member", ctx: auth.WithUser(context.Background(), "alice", auth.RoleMember), group: "trip"},
		{name: "Outsider", ctx: auth.WithUser(context.Background(), "mallory", auth.RoleMember), group: "trip", wantErr: auth.ErrNotMember},
		{name: "Anonymous", ctx: context.Background(), group: "trip", wantErr: auth.ErrNotMember},
		{name: "Admin", ctx: auth.WithUser(context.Background(), "root", auth.RoleAdmin), group: "trip"},
		{name: "CheckerFails", ctx: auth.WithUser(context.Background(), "alice", auth.RoleMember), group: "broken", anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.CheckGroupAccess(tt.ctx, members, tt.group)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.ErrorContains(t, err, "db down")
				assert.NotErrorIs(t, err, auth.ErrNotMember)
			default:
				assert.NoError(t, err)
			}
		})
	}
}
