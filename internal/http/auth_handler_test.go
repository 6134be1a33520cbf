package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"dreamscape/internal/domain"
	"dreamscape/internal/service"
)

type mockUserRepo struct {
	usersByID       map[string]domain.User
	usersByEmail    map[string]string
	usersByUsername map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:       make(map[string]domain.User),
		usersByEmail:    make(map[string]string),
		usersByUsername: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.usersByID[user.ID] = user
	if user.Email != "" {
		m.usersByEmail[user.Email] = user.ID
	}
	if user.Username != "" {
		m.usersByUsername[user.Username] = user.ID
	}
	return nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.usersByID[id], nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	id, ok := m.usersByUsername[username]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.usersByID[id], nil
}

func (m *mockUserRepo) SetVerificationCode(_ context.Context, id, code string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if user.Verified {
		return nil
	}
	user.VerificationCode = code
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) ConsumeVerificationCode(_ context.Context, email, code string) (bool, error) {
	id, ok := m.usersByEmail[email]
	if !ok {
		return false, nil
	}
	user := m.usersByID[id]
	if user.Verified || user.VerificationCode == "" || user.VerificationCode != code {
		return false, nil
	}
	user.Verified = true
	user.VerificationCode = ""
	m.usersByID[id] = user
	return true, nil
}

func (m *mockUserRepo) CompleteRegistration(_ context.Context, id, username, passwordHash string) (bool, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return false, nil
	}
	if !user.Verified || user.Username != "" {
		return false, nil
	}
	user.Username = username
	user.PasswordHash = passwordHash
	m.usersByID[id] = user
	m.usersByUsername[username] = id
	return true, nil
}

func (m *mockUserRepo) SetResetToken(_ context.Context, id, token string, expiry time.Time) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.ResetToken = token
	user.ResetTokenExpiry = &expiry
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) ConsumeResetToken(_ context.Context, token, passwordHash string, now time.Time) (bool, error) {
	for id, user := range m.usersByID {
		if user.ResetToken != token || user.ResetTokenExpiry == nil {
			continue
		}
		if !user.ResetTokenExpiry.After(now) {
			return false, nil
		}
		user.PasswordHash = passwordHash
		user.ResetToken = ""
		user.ResetTokenExpiry = nil
		m.usersByID[id] = user
		return true, nil
	}
	return false, nil
}

type mockEmailSender struct {
	lastTo       string
	lastCode     string
	lastResetURL string
	err          error
}

func (m *mockEmailSender) SendVerificationCode(_ context.Context, toEmail string, code string) error {
	m.lastTo = toEmail
	m.lastCode = code
	return m.err
}

func (m *mockEmailSender) SendPasswordReset(_ context.Context, toEmail string, resetURL string) error {
	m.lastTo = toEmail
	m.lastResetURL = resetURL
	return m.err
}

type mockEntryRepo struct {
	entries map[string]domain.JournalEntry
}

func newMockEntryRepo() *mockEntryRepo {
	return &mockEntryRepo{entries: make(map[string]domain.JournalEntry)}
}

func (m *mockEntryRepo) Create(_ context.Context, entry domain.JournalEntry) error {
	m.entries[entry.ID] = entry
	return nil
}

func (m *mockEntryRepo) ListByUsername(_ context.Context, username string) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	for _, e := range m.entries {
		if e.Username == username {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEntryRepo) Update(_ context.Context, entry domain.JournalEntry) (domain.JournalEntry, bool, error) {
	existing, ok := m.entries[entry.ID]
	if !ok || existing.Username != entry.Username {
		return domain.JournalEntry{}, false, nil
	}
	existing.Title = entry.Title
	existing.Dream = entry.Dream
	existing.Tags = entry.Tags
	existing.Mood = entry.Mood
	m.entries[entry.ID] = existing
	return existing, true, nil
}

func (m *mockEntryRepo) Delete(_ context.Context, id, username string) (bool, error) {
	existing, ok := m.entries[id]
	if !ok || existing.Username != username {
		return false, nil
	}
	delete(m.entries, id)
	return true, nil
}

type testEnv struct {
	router *gin.Engine
	repo   *mockUserRepo
	sender *mockEmailSender
	ents   *mockEntryRepo
	tokens *service.TokenService
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	ents := newMockEntryRepo()
	authSvc := service.NewAuthService(zap.NewNop(), repo, sender, service.NewCodeRateLimiter(time.Minute, 100), "http://localhost:5173")
	tokens := service.NewTokenService("test-secret", time.Hour)

	authH := NewAuthHandler(zap.NewNop(), authSvc, tokens)
	journalH := NewJournalHandler(zap.NewNop(), ents)
	router := NewRouter(zap.NewNop(), authH, journalH, tokens, nil, nil, nil)

	return &testEnv{router: router, repo: repo, sender: sender, ents: ents, tokens: tokens}
}

func performJSON(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestSignupVerifyRegisterLoginFlow(t *testing.T) {
	env := setupRouter(t)

	rec := performJSON(env.router, http.MethodPost, "/api/auth/signup", map[string]string{"email": "a@x.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("signup: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["email"] != "a@x.com" {
		t.Fatalf("expected email echoed, got %v", body)
	}
	if env.sender.lastTo != "a@x.com" || env.sender.lastCode == "" {
		t.Fatalf("expected verification email sent")
	}

	// Codigo equivocado: 400 sin consumir el vigente.
	rec = performJSON(env.router, http.MethodPost, "/api/auth/verify", map[string]string{"email": "a@x.com", "code": "000000"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong code: expected 400, got %d", rec.Code)
	}

	rec = performJSON(env.router, http.MethodPost, "/api/auth/verify", map[string]string{"email": "a@x.com", "code": env.sender.lastCode}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = performJSON(env.router, http.MethodPost, "/api/auth/register", map[string]string{
		"email": "a@x.com", "username": "alice", "password": "Secretpw1",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	user, ok := body["user"].(map[string]any)
	if !ok || user["email"] != "a@x.com" || user["username"] != "alice" {
		t.Fatalf("unexpected register body: %v", body)
	}

	rec = performJSON(env.router, http.MethodPost, "/api/auth/login", map[string]string{
		"usernameOrEmail": "alice", "password": "wrongpw",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", rec.Code)
	}

	rec = performJSON(env.router, http.MethodPost, "/api/auth/login", map[string]string{
		"usernameOrEmail": "alice", "password": "Secretpw1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("expected session token in body")
	}

	cookies := rec.Result().Cookies()
	var haveSession, haveName bool
	for _, ck := range cookies {
		switch ck.Name {
		case sessionCookie:
			haveSession = ck.Value != ""
		case displayNameCookie:
			haveName = ck.Value == "alice"
		}
	}
	if !haveSession || !haveName {
		t.Fatalf("expected session and user_name cookies, got %+v", cookies)
	}

	// El token emitido identifica al mismo sujeto.
	claims, err := env.tokens.Parse(token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	stored, _ := env.repo.GetByUsername(context.Background(), "alice")
	if claims.UserID != stored.ID {
		t.Fatalf("expected subject %q, got %q", stored.ID, claims.UserID)
	}

	rec = performJSON(env.router, http.MethodGet, "/api/auth/profile", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["userName"] != "alice" {
		t.Fatalf("unexpected profile body: %v", body)
	}
}

func TestSignupAlreadyVerified(t *testing.T) {
	env := setupRouter(t)

	if err := env.repo.Create(context.Background(), domain.User{
		ID: "u1", Email: "a@x.com", Verified: true, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	rec := performJSON(env.router, http.MethodPost, "/api/auth/signup", map[string]string{"email": "a@x.com"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if decodeBody(t, rec)["message"] != "Email already verified. Please login." {
		t.Fatalf("unexpected message: %s", rec.Body.String())
	}
}

func TestSignupEmailDeliveryFailure(t *testing.T) {
	env := setupRouter(t)
	env.sender.err = errors.New("smtp down")

	rec := performJSON(env.router, http.MethodPost, "/api/auth/signup", map[string]string{"email": "a@x.com"}, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestLoginStatuses(t *testing.T) {
	env := setupRouter(t)

	rec := performJSON(env.router, http.MethodPost, "/api/auth/login", map[string]string{
		"usernameOrEmail": "ghost", "password": "whatever1",
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", rec.Code)
	}

	if err := env.repo.Create(context.Background(), domain.User{
		ID: "u1", Email: "b@x.com", Username: "bob", PasswordHash: "x",
		Verified: false, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	rec = performJSON(env.router, http.MethodPost, "/api/auth/login", map[string]string{
		"usernameOrEmail": "bob", "password": "whatever1",
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unverified account: expected 403, got %d", rec.Code)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	env := setupRouter(t)

	rec := performJSON(env.router, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ghost@x.com"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown email: expected 404, got %d", rec.Code)
	}

	registerViaAPI(t, env, "a@x.com", "alice", "Secretpw1")

	rec = performJSON(env.router, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "a@x.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	stored, _ := env.repo.GetByEmail(context.Background(), "a@x.com")
	if stored.ResetToken == "" {
		t.Fatalf("expected reset token stored")
	}

	rec = performJSON(env.router, http.MethodPost, "/api/auth/reset-password/"+stored.ResetToken, map[string]string{"password": "NewPw12345"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Token ya consumido.
	rec = performJSON(env.router, http.MethodPost, "/api/auth/reset-password/"+stored.ResetToken, map[string]string{"password": "AnotherPw1"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reused token: expected 400, got %d", rec.Code)
	}

	rec = performJSON(env.router, http.MethodPost, "/api/auth/login", map[string]string{
		"usernameOrEmail": "alice", "password": "NewPw12345",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", rec.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := setupRouter(t)
	registerViaAPI(t, env, "a@x.com", "alice", "Secretpw1")

	rec := performJSON(env.router, http.MethodPost, "/api/auth/login", map[string]string{
		"usernameOrEmail": "alice", "password": "Secretpw1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	token, _ := decodeBody(t, rec)["token"].(string)

	rec = performJSON(env.router, http.MethodPost, "/api/auth/logout", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}
	var cleared int
	for _, ck := range rec.Result().Cookies() {
		if (ck.Name == sessionCookie || ck.Name == displayNameCookie) && ck.MaxAge < 0 {
			cleared++
		}
	}
	if cleared != 2 {
		t.Fatalf("expected both cookies cleared, got %d", cleared)
	}

	rec = performJSON(env.router, http.MethodGet, "/api/auth/profile", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d", rec.Code)
	}
}

func TestProfileUnauthenticated(t *testing.T) {
	env := setupRouter(t)

	rec := performJSON(env.router, http.MethodGet, "/api/auth/profile", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = performJSON(env.router, http.MethodGet, "/api/auth/profile", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func registerViaAPI(t *testing.T, env *testEnv, email, username, password string) {
	t.Helper()
	rec := performJSON(env.router, http.MethodPost, "/api/auth/signup", map[string]string{"email": email}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("signup failed: %d (%s)", rec.Code, rec.Body.String())
	}
	rec = performJSON(env.router, http.MethodPost, "/api/auth/verify", map[string]string{"email": email, "code": env.sender.lastCode}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %d (%s)", rec.Code, rec.Body.String())
	}
	rec = performJSON(env.router, http.MethodPost, "/api/auth/register", map[string]string{
		"email": email, "username": username, "password": password,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d (%s)", rec.Code, rec.Body.String())
	}
}
