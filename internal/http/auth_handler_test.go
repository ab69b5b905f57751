package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dulm-api/internal/domain"
	"dulm-api/internal/repository"
	"dulm-api/internal/service"
)

type mockUserRepo struct {
	usersByID       map[string]domain.User
	usersByUsername map[string]string
	usersByEmail    map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:       make(map[string]domain.User),
		usersByUsername: make(map[string]string),
		usersByEmail:    make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.usersByID[user.ID] = user
	m.usersByUsername[user.Username] = user.ID
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	id, ok := m.usersByUsername[username]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.usersByID[id] = user
	return nil
}

type mockVerificationRepo struct {
	mu      sync.Mutex
	records []domain.VerificationRecord
}

func (m *mockVerificationRepo) Create(_ context.Context, rec domain.VerificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockVerificationRepo) LatestUnused(_ context.Context, email string, purpose domain.Purpose) (domain.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.VerificationRecord
	for i := range m.records {
		rec := &m.records[i]
		if rec.Email != email || rec.Purpose != purpose || rec.Used {
			continue
		}
		if found == nil || rec.CreatedAt.After(found.CreatedAt) {
			found = rec
		}
	}
	if found == nil {
		return domain.VerificationRecord{}, pgx.ErrNoRows
	}
	return *found, nil
}

func (m *mockVerificationRepo) MarkUsed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			if m.records[i].Used {
				return false, nil
			}
			m.records[i].Used = true
			return true, nil
		}
	}
	return false, nil
}

func (m *mockVerificationRepo) ExistsSince(_ context.Context, email string, purpose domain.Purpose, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.Email == email && rec.Purpose == purpose && !rec.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockVerificationRepo) HasConsumed(_ context.Context, email string, purpose domain.Purpose) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.Email == email && rec.Purpose == purpose && rec.Used {
			return true, nil
		}
	}
	return false, nil
}

type mockRoomRepo struct {
	mu          sync.Mutex
	roomsByID   map[string]domain.Room
	roomsByCode map[string]string
	members     map[string]domain.RoomMember
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{
		roomsByID:   make(map[string]domain.Room),
		roomsByCode: make(map[string]string),
		members:     make(map[string]domain.RoomMember),
	}
}

func (m *mockRoomRepo) CreateWithOwner(_ context.Context, room domain.Room, owner domain.RoomMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.roomsByCode[room.Code]; taken {
		return repository.ErrRoomCodeTaken
	}
	m.roomsByID[room.ID] = room
	m.roomsByCode[room.Code] = room.ID
	m.members[room.ID+"|"+owner.UserID] = owner
	return nil
}

func (m *mockRoomRepo) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.roomsByCode[code]
	return ok, nil
}

func (m *mockRoomRepo) GetByID(_ context.Context, id string) (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.roomsByID[id]
	if !ok {
		return domain.Room{}, pgx.ErrNoRows
	}
	return room, nil
}

func (m *mockRoomRepo) GetMember(_ context.Context, roomID, userID string) (domain.RoomMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[roomID+"|"+userID]
	if !ok {
		return domain.RoomMember{}, pgx.ErrNoRows
	}
	return member, nil
}

func (m *mockRoomRepo) MarkLeft(_ context.Context, roomID, userID string, leftAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[roomID+"|"+userID]
	if !ok || member.LeftAt != nil {
		return false, nil
	}
	member.LeftAt = &leftAt
	m.members[roomID+"|"+userID] = member
	return true, nil
}

type mockCodeSender struct {
	lastTo   string
	lastCode string
	err      error
}

func (m *mockCodeSender) SendVerificationCode(_ context.Context, toEmail string, code string, _ time.Time) error {
	m.lastTo = toEmail
	m.lastCode = code
	return m.err
}

type testEnv struct {
	router  *gin.Engine
	users   *mockUserRepo
	records *mockVerificationRepo
	rooms   *mockRoomRepo
	sender  *mockCodeSender
	jwtSvc  *service.JWTService
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	users := newMockUserRepo()
	records := &mockVerificationRepo{}
	rooms := newMockRoomRepo()
	sender := &mockCodeSender{}

	verifications := service.NewVerificationService(logger, records, sender, nil, 0, 0)
	accounts := service.NewAccountService(logger, users, verifications)
	roomSvc := service.NewRoomService(logger, rooms, nil)
	jwtSvc := service.NewJWTServiceWithStore("secret", 15*time.Minute, 30*time.Minute, service.NewMemoryRefreshTokenStore())

	authH := NewAuthHandler(logger, accounts, verifications, jwtSvc)
	roomH := NewRoomHandler(logger, roomSvc)
	router := NewRouter(logger, jwtSvc, authH, roomH)

	return &testEnv{
		router:  router,
		users:   users,
		records: records,
		rooms:   rooms,
		sender:  sender,
		jwtSvc:  jwtSvc,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedConsumedSignup(emailAddr string) {
	_ = e.records.Create(context.Background(), domain.VerificationRecord{
		ID:        uuid.NewString(),
		Email:     emailAddr,
		Purpose:   domain.PurposeSignup,
		Code:      "123456",
		Used:      true,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
		ExpiresAt: time.Now().UTC().Add(-50 * time.Minute),
	})
}

func (e *testEnv) seedUser(username, emailAddr, password string) domain.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        emailAddr,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	_ = e.users.Create(context.Background(), user)
	return user
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestSendCode_OKThenRateLimited(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/auth/send-code", gin.H{"email": "a@x.com", "purpose": "SIGNUP"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.sender.lastTo != "a@x.com" || len(env.sender.lastCode) != 6 {
		t.Fatalf("expected code delivered, got to=%q code=%q", env.sender.lastTo, env.sender.lastCode)
	}

	rec = env.do(t, http.MethodPost, "/auth/send-code", gin.H{"email": "a@x.com", "purpose": "SIGNUP"}, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 within cooldown, got %d", rec.Code)
	}
}

func TestSendCode_RejectsUnknownPurpose(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodPost, "/auth/send-code", gin.H{"email": "a@x.com", "purpose": "OTHER"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVerifyCode_Flow(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/auth/send-code", gin.H{"email": "a@x.com", "purpose": "SIGNUP"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", rec.Code)
	}
	code := env.sender.lastCode

	rec = env.do(t, http.MethodPost, "/auth/verify-code", gin.H{"email": "a@x.com", "purpose": "SIGNUP", "code": "999999"}, "")
	if rec.Code != http.StatusBadRequest && code != "999999" {
		t.Fatalf("expected 400 on mismatch, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/auth/verify-code", gin.H{"email": "a@x.com", "purpose": "SIGNUP", "code": code}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Reuso del mismo codigo: ya consumido.
	rec = env.do(t, http.MethodPost, "/auth/verify-code", gin.H{"email": "a@x.com", "purpose": "SIGNUP", "code": code}, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on reuse, got %d", rec.Code)
	}
}

func TestVerifyCode_Expired(t *testing.T) {
	env := newTestEnv()
	_ = env.records.Create(context.Background(), domain.VerificationRecord{
		ID:        uuid.NewString(),
		Email:     "a@x.com",
		Purpose:   domain.PurposeSignup,
		Code:      "123456",
		CreatedAt: time.Now().UTC().Add(-11 * time.Minute),
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	})

	rec := env.do(t, http.MethodPost, "/auth/verify-code", gin.H{"email": "a@x.com", "purpose": "SIGNUP", "code": "123456"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "verification code expired" {
		t.Fatalf("expected expired error, got %v", body["error"])
	}
}

func TestRegister_RequiresVerification(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/auth/register", gin.H{
		"username": "bob",
		"email":    "bob@x.com",
		"password": "password1",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["field"] != "email" {
		t.Fatalf("expected field email, got %v", body["field"])
	}
}

func TestRegister_SuccessIssuesTokens(t *testing.T) {
	env := newTestEnv()
	env.seedConsumedSignup("bob@x.com")

	rec := env.do(t, http.MethodPost, "/auth/register", gin.H{
		"username": "bob",
		"email":    "bob@x.com",
		"password": "password1",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	tokens, ok := body["tokens"].(map[string]any)
	if !ok || tokens["access_token"] == "" || tokens["refresh_token"] == "" {
		t.Fatalf("expected token pair, got %v", body["tokens"])
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv()
	env.seedUser("bob", "bob@x.com", "password1")

	rec := env.do(t, http.MethodPost, "/auth/login", gin.H{"username": "bob", "password": "password1"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/auth/login", gin.H{"username": "bob", "password": "nope-wrong"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/auth/login", gin.H{"username": "ghost", "password": "password1"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", rec.Code)
	}
}

func TestResetPassword_Flow(t *testing.T) {
	env := newTestEnv()
	env.seedUser("bob", "bob@x.com", "oldpassword")
	_ = env.records.Create(context.Background(), domain.VerificationRecord{
		ID:        uuid.NewString(),
		Email:     "bob@x.com",
		Purpose:   domain.PurposeResetPassword,
		Code:      "042918",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	})

	rec := env.do(t, http.MethodPost, "/auth/reset-password", gin.H{
		"username":    "ghost",
		"code":        "042918",
		"newPassword": "newpassword",
	}, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/auth/reset-password", gin.H{
		"username":    "bob",
		"code":        "042918",
		"newPassword": "newpassword",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/auth/login", gin.H{"username": "bob", "password": "newpassword"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login with new password, got %d", rec.Code)
	}
}

func TestMe_RequiresToken(t *testing.T) {
	env := newTestEnv()
	user := env.seedUser("bob", "bob@x.com", "password1")

	rec := env.do(t, http.MethodGet, "/auth/me", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	pair, err := env.jwtSvc.GeneratePair(user)
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	rec = env.do(t, http.MethodGet, "/auth/me", nil, pair.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["username"] != "bob" || body["email"] != "bob@x.com" {
		t.Fatalf("unexpected me payload: %v", body)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	env := newTestEnv()
	user := env.seedUser("bob", "bob@x.com", "password1")
	pair, err := env.jwtSvc.GeneratePair(user)
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": pair.RefreshToken}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// El refresh viejo quedo rotado.
	rec = env.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": pair.RefreshToken}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on rotated token, got %d", rec.Code)
	}

	pair2, _ := env.jwtSvc.GeneratePair(user)
	rec = env.do(t, http.MethodPost, "/auth/logout", gin.H{"refresh_token": pair2.RefreshToken}, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": pair2.RefreshToken}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}
