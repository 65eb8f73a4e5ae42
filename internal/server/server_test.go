package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/famboard/internal/auth"
	"github.com/dukerupert/famboard/internal/database"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, Options{
		Tokens:         auth.NewTokens("test-secret-0123456789", time.Hour),
		AuthRateLimit:  100,
		AuthRateWindow: time.Minute,
	}, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type authResult struct {
	Token  string `json:"token"`
	Member struct {
		ID int64 `json:"id"`
	} `json:"member"`
}

func registerMember(t *testing.T, ts *httptest.Server, email, name string) authResult {
	t.Helper()
	var res authResult
	status := doJSON(t, ts, "POST", "/api/auth/register", "", map[string]string{
		"email":      email,
		"password":   "correct-horse",
		"given_name": name,
	}, &res)
	if status != http.StatusCreated {
		t.Fatalf("register %s: status = %d", email, status)
	}
	return res
}

func TestHealth(t *testing.T) {
	ts := setupServer(t)
	if status := doJSON(t, ts, "GET", "/health", "", nil, nil); status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := setupServer(t)
	for _, path := range []string{"/api/me", "/api/tasks", "/api/leaderboard"} {
		if status := doJSON(t, ts, "GET", path, "", nil, nil); status != http.StatusUnauthorized {
			t.Errorf("GET %s: status = %d, want 401", path, status)
		}
	}
	if status := doJSON(t, ts, "GET", "/api/me", "not-a-token", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", status)
	}
}

func TestLoginAndDuplicateRegister(t *testing.T) {
	ts := setupServer(t)
	registerMember(t, ts, "ana@example.com", "Ana")

	status := doJSON(t, ts, "POST", "/api/auth/register", "", map[string]string{
		"email": "ANA@example.com", "password": "correct-horse", "given_name": "Ana",
	}, nil)
	if status != http.StatusConflict {
		t.Errorf("duplicate register: status = %d, want 409", status)
	}

	var res authResult
	if status := doJSON(t, ts, "POST", "/api/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "correct-horse",
	}, &res); status != http.StatusOK {
		t.Fatalf("login: status = %d", status)
	}
	if res.Token == "" {
		t.Error("expected token")
	}

	if status := doJSON(t, ts, "POST", "/api/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "wrong-password",
	}, nil); status != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", status)
	}
}

func TestFamilyRoutesRequireMembership(t *testing.T) {
	ts := setupServer(t)
	ana := registerMember(t, ts, "ana@example.com", "Ana")

	if status := doJSON(t, ts, "GET", "/api/tasks", ana.Token, nil, nil); status != http.StatusConflict {
		t.Errorf("tasks without family: status = %d, want 409", status)
	}
}

func TestTaskAndRewardFlow(t *testing.T) {
	ts := setupServer(t)
	ana := registerMember(t, ts, "ana@example.com", "Ana")
	ben := registerMember(t, ts, "ben@example.com", "Ben")

	var fam struct {
		Family struct {
			ID       int64  `json:"id"`
			JoinCode string `json:"join_code"`
		} `json:"family"`
	}
	if status := doJSON(t, ts, "POST", "/api/family", ana.Token, map[string]string{"name": "Ramos"}, &fam); status != http.StatusCreated {
		t.Fatalf("create family: status = %d", status)
	}
	if fam.Family.JoinCode == "" {
		t.Fatal("owner should see the join code")
	}

	if status := doJSON(t, ts, "POST", "/api/family/join", ben.Token, map[string]string{"join_code": fam.Family.JoinCode}, nil); status != http.StatusAccepted {
		t.Fatalf("join: status = %d", status)
	}
	// Pending members cannot reach family routes yet.
	if status := doJSON(t, ts, "GET", "/api/tasks", ben.Token, nil, nil); status != http.StatusConflict {
		t.Errorf("pending tasks: status = %d, want 409", status)
	}
	approvePath := fmt.Sprintf("/api/family/requests/%d/approve", ben.Member.ID)
	if status := doJSON(t, ts, "POST", approvePath, ben.Token, nil, nil); status != http.StatusConflict {
		t.Errorf("pending self-approve: status = %d, want 409", status)
	}
	if status := doJSON(t, ts, "POST", approvePath, ana.Token, nil, nil); status != http.StatusOK {
		t.Fatalf("approve: status = %d", status)
	}

	var task struct {
		ID         int64 `json:"id"`
		AssignedTo int64 `json:"assigned_to"`
	}
	if status := doJSON(t, ts, "POST", "/api/tasks", ben.Token, map[string]any{
		"title": "Dishes", "energy": "high",
	}, &task); status != http.StatusCreated {
		t.Fatalf("create task: status = %d", status)
	}
	if task.AssignedTo != ben.Member.ID {
		t.Errorf("assigned_to = %d, want %d", task.AssignedTo, ben.Member.ID)
	}

	var completion struct {
		PointsAwarded int `json:"points_awarded"`
		Member        struct {
			Points int `json:"points"`
			Streak int `json:"streak"`
		} `json:"member"`
	}
	completePath := fmt.Sprintf("/api/tasks/%d/complete", task.ID)
	if status := doJSON(t, ts, "POST", completePath, ben.Token, nil, &completion); status != http.StatusOK {
		t.Fatalf("complete: status = %d", status)
	}
	if completion.PointsAwarded != 15 || completion.Member.Points != 15 {
		t.Errorf("completion = %+v, want 15 points", completion)
	}
	if status := doJSON(t, ts, "POST", completePath, ben.Token, nil, nil); status != http.StatusConflict {
		t.Errorf("double complete: status = %d, want 409", status)
	}

	// Reward writes are owner only.
	if status := doJSON(t, ts, "POST", "/api/rewards", ben.Token, map[string]any{
		"title": "Ice cream", "point_cost": 10,
	}, nil); status != http.StatusForbidden {
		t.Errorf("member create reward: status = %d, want 403", status)
	}
	var reward struct {
		ID int64 `json:"id"`
	}
	if status := doJSON(t, ts, "POST", "/api/rewards", ana.Token, map[string]any{
		"title": "Ice cream", "emoji": "🍦", "point_cost": 10,
	}, &reward); status != http.StatusCreated {
		t.Fatalf("create reward: status = %d", status)
	}

	redeemPath := fmt.Sprintf("/api/rewards/%d/redeem", reward.ID)
	if status := doJSON(t, ts, "POST", redeemPath, ben.Token, nil, nil); status != http.StatusCreated {
		t.Fatalf("redeem: status = %d", status)
	}
	if status := doJSON(t, ts, "POST", redeemPath, ben.Token, nil, nil); status != http.StatusConflict {
		t.Errorf("redeem past balance: status = %d, want 409", status)
	}

	var progress struct {
		Member struct {
			Points int `json:"points"`
		} `json:"member"`
		Balance struct {
			Balance     int `json:"balance"`
			TotalEarned int `json:"total_earned"`
		} `json:"balance"`
		Redemptions []json.RawMessage `json:"redemptions"`
	}
	progressPath := fmt.Sprintf("/api/members/%d/progress", ben.Member.ID)
	if status := doJSON(t, ts, "GET", progressPath, ana.Token, nil, &progress); status != http.StatusOK {
		t.Fatalf("progress: status = %d", status)
	}
	if progress.Member.Points != 15 || progress.Balance.Balance != 5 {
		t.Errorf("progress points = %d balance = %d, want 15 and 5", progress.Member.Points, progress.Balance.Balance)
	}
	if len(progress.Redemptions) != 1 {
		t.Errorf("redemptions = %d, want 1", len(progress.Redemptions))
	}

	var board []struct {
		MemberID int64 `json:"member_id"`
	}
	if status := doJSON(t, ts, "GET", "/api/leaderboard", ana.Token, nil, &board); status != http.StatusOK {
		t.Fatalf("leaderboard: status = %d", status)
	}
	if len(board) != 2 || board[0].MemberID != ben.Member.ID {
		t.Errorf("leaderboard = %+v, want ben first", board)
	}
}

func TestOutsiderCannotSeeMember(t *testing.T) {
	ts := setupServer(t)
	ana := registerMember(t, ts, "ana@example.com", "Ana")
	cy := registerMember(t, ts, "cy@example.com", "Cy")

	doJSON(t, ts, "POST", "/api/family", ana.Token, map[string]string{"name": "Ramos"}, nil)
	doJSON(t, ts, "POST", "/api/family", cy.Token, map[string]string{"name": "Other"}, nil)

	path := fmt.Sprintf("/api/members/%d/progress", ana.Member.ID)
	if status := doJSON(t, ts, "GET", path, cy.Token, nil, nil); status != http.StatusNotFound {
		t.Errorf("cross-family progress: status = %d, want 404", status)
	}
}

func TestAuthRateLimit(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	srv := New(db, Options{
		Tokens:         auth.NewTokens("test-secret-0123456789", time.Hour),
		AuthRateLimit:  2,
		AuthRateWindow: time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	creds := map[string]string{"email": "nobody@example.com", "password": "whatever-pass"}
	for i := range 2 {
		if status := doJSON(t, ts, "POST", "/api/auth/login", "", creds, nil); status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i, status)
		}
	}
	if status := doJSON(t, ts, "POST", "/api/auth/login", "", creds, nil); status != http.StatusTooManyRequests {
		t.Errorf("third attempt: status = %d, want 429", status)
	}
}
