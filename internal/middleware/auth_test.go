package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/famboard/internal/auth"
	"github.com/dukerupert/famboard/internal/database"
	"github.com/dukerupert/famboard/internal/store"
)

type authFixture struct {
	tokens   *auth.Tokens
	members  *store.MemberStore
	families *store.FamilyStore
	handler  http.Handler
	got      *auth.AuthContext
}

func setupAuthMiddleware(t *testing.T) *authFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &authFixture{
		tokens:   auth.NewTokens("middleware-test-secret", time.Hour),
		members:  store.NewMemberStore(db),
		families: store.NewFamilyStore(db),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.handler = RequireAuth(f.tokens, f.members, f.families, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		f.got = &ac
		w.WriteHeader(http.StatusOK)
	}))
	return f
}

func TestRequireAuthNoToken(t *testing.T) {
	f := setupAuthMiddleware(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if f.got != nil {
		t.Error("handler should not run")
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	f := setupAuthMiddleware(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthUnknownMember(t *testing.T) {
	f := setupAuthMiddleware(t)
	tok, _ := f.tokens.Issue(999)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthOwner(t *testing.T) {
	f := setupAuthMiddleware(t)
	m, _ := f.members.Create("ana@example.com", "hash", "Ana", "Lopez", "")
	fam, err := f.families.Create(m.ID, "")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	tok, _ := f.tokens.Issue(m.ID)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if f.got.MemberID != m.ID {
		t.Errorf("MemberID = %d, want %d", f.got.MemberID, m.ID)
	}
	if f.got.FamilyID != fam.ID {
		t.Errorf("FamilyID = %d, want %d", f.got.FamilyID, fam.ID)
	}
	if f.got.Role != auth.RoleOwner {
		t.Errorf("Role = %q, want %q", f.got.Role, auth.RoleOwner)
	}
}

func TestRequireAuthCookiePendingMember(t *testing.T) {
	f := setupAuthMiddleware(t)
	owner, _ := f.members.Create("ana@example.com", "hash", "Ana", "Lopez", "")
	fam, _ := f.families.Create(owner.ID, "")
	joiner, _ := f.members.Create("ben@example.com", "hash", "Ben", "Ruiz", "")
	if _, err := f.families.RequestJoin(joiner.ID, fam.JoinCode); err != nil {
		t.Fatalf("request join: %v", err)
	}
	tok, _ := f.tokens.Issue(joiner.ID)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: tok})
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if f.got.FamilyID != 0 || f.got.Role != "" {
		t.Errorf("pending member got family %d role %q, want none", f.got.FamilyID, f.got.Role)
	}
}

func TestRequireOwner(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		role string
		want int
	}{
		{auth.RoleOwner, http.StatusOK},
		{auth.RoleMember, http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		ctx := auth.WithAuth(context.Background(), auth.AuthContext{MemberID: 1, FamilyID: 1, Role: tt.role})
		rec := httptest.NewRecorder()
		RequireOwner(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil).WithContext(ctx))
		if rec.Code != tt.want {
			t.Errorf("role %q: status = %d, want %d", tt.role, rec.Code, tt.want)
		}
	}
}

func TestRequireFamily(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	ctx := auth.WithAuth(context.Background(), auth.AuthContext{MemberID: 1})
	rec := httptest.NewRecorder()
	RequireFamily(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil).WithContext(ctx))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}

	ctx = auth.WithAuth(context.Background(), auth.AuthContext{MemberID: 1, FamilyID: 3, Role: auth.RoleMember})
	rec = httptest.NewRecorder()
	RequireFamily(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil).WithContext(ctx))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
