package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/hoaxify/internal/auth"
	"github.com/prn-tf/hoaxify/internal/i18n"
	"github.com/prn-tf/hoaxify/internal/lock"
	"github.com/prn-tf/hoaxify/internal/mail"
	"github.com/prn-tf/hoaxify/internal/metrics"
	"github.com/prn-tf/hoaxify/internal/pkg/crypto"
	"github.com/prn-tf/hoaxify/internal/repository"
	"github.com/prn-tf/hoaxify/internal/repository/sqlite"
	"github.com/prn-tf/hoaxify/internal/service"
)

// recordingSender captures outgoing mail and can be told to fail.
type recordingSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type testServer struct {
	handler http.Handler
	users   repository.UserRepository
	sender  *recordingSender
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(":memory:"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	translator, err := i18n.New("en")
	require.NoError(t, err)

	locker := lock.NewMemoryLocker()
	t.Cleanup(func() { _ = locker.Close() })

	sender := &recordingSender{}
	users := sqlite.NewUserRepository(db)
	m := metrics.New()

	svc := service.NewUserService(service.UserServiceConfig{
		Users:    users,
		Tx:       db,
		Locker:   locker,
		Notifier: mail.NewActivationMailer(sender, translator, "http://localhost:8080/#/login", time.Second),
		Hasher:   crypto.NewPasswordHasher(bcrypt.MinCost),
		Metrics:  m,
		Logger:   zerolog.Nop(),
	})

	router := NewRouter(RouterConfig{
		Users:      svc,
		Translator: translator,
		Database:   db,
		Metrics:    m,
		Build:      BuildInfo{Version: "test"},
		Logger:     zerolog.Nop(),
	})

	return &testServer{handler: router.Handler(), users: users, sender: sender, metrics: m}
}

type requestOption func(*http.Request)

func withLanguage(lang string) requestOption {
	return func(r *http.Request) { r.Header.Set("Accept-Language", lang) }
}

func withBasic(email, password string) requestOption {
	return func(r *http.Request) { r.Header.Set(auth.AuthorizationHeader, auth.BasicHeader(email, password)) }
}

func (s *testServer) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func validUser(n int) map[string]string {
	return map[string]string{
		"username": fmt.Sprintf("user%d", n),
		"email":    fmt.Sprintf("user%d@mail.com", n),
		"password": "P4ssword",
	}
}

func (s *testServer) tokenFor(t *testing.T, email string) string {
	t.Helper()
	u, err := s.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, u.ActivationToken)
	return *u.ActivationToken
}

// addActiveUser registers and activates user n and returns its id.
func (s *testServer) addActiveUser(t *testing.T, n int) int64 {
	t.Helper()
	body := validUser(n)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/1.0/users", body).Code)
	token := s.tokenFor(t, body["email"])
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/1.0/users/token/"+token, nil).Code)
	u, err := s.users.GetByEmail(context.Background(), body["email"])
	require.NoError(t, err)
	return u.ID
}

func TestRegister(t *testing.T) {
	t.Run("creates user and mails token", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(t, http.MethodPost, "/api/1.0/users", validUser(1))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "User created", decodeBody[MessageResponse](t, rec).Message)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

		token := s.tokenFor(t, "user1@mail.com")
		require.Len(t, s.sender.sent, 1)
		assert.Equal(t, "user1@mail.com", s.sender.sent[0].To)
		assert.Equal(t, "Account Activation", s.sender.sent[0].Subject)
		assert.Contains(t, s.sender.sent[0].HTML, "token="+token)
	})

	t.Run("validation errors in bulgarian", func(t *testing.T) {
		s := newTestServer(t)
		body := validUser(1)
		body["username"] = ""
		rec := s.do(t, http.MethodPost, "/api/1.0/users", body, withLanguage("bg"))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeBody[ErrorResponse](t, rec)
		assert.Equal(t, "/api/1.0/users", resp.Path)
		assert.NotZero(t, resp.Timestamp)
		assert.Equal(t, "Грешка при валидация", resp.Message)
		assert.Equal(t, "Потребителското име не може да бъде празно", resp.ValidationErrors["username"])
		assert.Len(t, resp.ValidationErrors, 1)
	})

	t.Run("all fields missing", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(t, http.MethodPost, "/api/1.0/users", map[string]string{})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeBody[ErrorResponse](t, rec)
		assert.Equal(t, "Username cannot be null", resp.ValidationErrors["username"])
		assert.Equal(t, "E-mail cannot be null", resp.ValidationErrors["email"])
		assert.Equal(t, "Password cannot be null", resp.ValidationErrors["password"])
	})

	t.Run("email in use", func(t *testing.T) {
		s := newTestServer(t)
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/1.0/users", validUser(1)).Code)

		rec := s.do(t, http.MethodPost, "/api/1.0/users", validUser(1))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "E-mail in use", decodeBody[ErrorResponse](t, rec).ValidationErrors["email"])
	})

	t.Run("mail failure returns 502 and stores nothing", func(t *testing.T) {
		s := newTestServer(t)
		s.sender.err = errors.New("smtp unavailable")

		rec := s.do(t, http.MethodPost, "/api/1.0/users", validUser(1))
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "E-mail Failure", decodeBody[ErrorResponse](t, rec).Message)

		exists, err := s.users.ExistsByEmail(context.Background(), "user1@mail.com")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("concurrent duplicates create one user", func(t *testing.T) {
		s := newTestServer(t)
		body, err := json.Marshal(validUser(1))
		require.NoError(t, err)

		const attempts = 8
		codes := make([]int, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				req := httptest.NewRequest(http.MethodPost, "/api/1.0/users", bytes.NewReader(body))
				req.Header.Set("Content-Type", "application/json")
				rec := httptest.NewRecorder()
				s.handler.ServeHTTP(rec, req)
				codes[i] = rec.Code
			}(i)
		}
		wg.Wait()

		var created, rejected int
		for _, code := range codes {
			switch code {
			case http.StatusOK:
				created++
			case http.StatusBadRequest:
				rejected++
			}
		}
		assert.Equal(t, 1, created)
		assert.Equal(t, attempts-1, rejected)

		page, err := s.users.ListActive(context.Background(), repository.ListOptions{Limit: 10})
		require.NoError(t, err)
		assert.Zero(t, page.Total, "new user stays inactive")
		exists, err := s.users.ExistsByEmail(context.Background(), "user1@mail.com")
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Len(t, s.sender.sent, 1)
	})

	t.Run("bulgarian activation subject", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(t, http.MethodPost, "/api/1.0/users", validUser(1), withLanguage("bg"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Потребителят е създаден", decodeBody[MessageResponse](t, rec).Message)
		require.Len(t, s.sender.sent, 1)
		assert.Equal(t, "Активиране на акаунт", s.sender.sent[0].Subject)
	})
}

func TestActivate(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/1.0/users", validUser(1)).Code)
	token := s.tokenFor(t, "user1@mail.com")

	rec := s.do(t, http.MethodPost, "/api/1.0/users/activation/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Account is activated", decodeBody[MessageResponse](t, rec).Message)

	u, err := s.users.GetByEmail(context.Background(), "user1@mail.com")
	require.NoError(t, err)
	assert.False(t, u.Inactive)
	assert.Nil(t, u.ActivationToken)

	rec = s.do(t, http.MethodPost, "/api/1.0/users/token/"+token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "This account is either active or the token is invalid", decodeBody[ErrorResponse](t, rec).Message)
}

func TestListUsers(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(t, http.MethodGet, "/api/1.0/users", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"totalPages":0,"currentPage":0,"pageSize":10,"users":[]}`, rec.Body.String())
	})

	s := newTestServer(t)
	for i := 1; i <= 11; i++ {
		s.addActiveUser(t, i)
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/1.0/users", validUser(99)).Code)

	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantSize  int
		wantTotal int
		wantCount int
	}{
		{"defaults", "", 0, 10, 2, 10},
		{"second page", "?page=1", 1, 10, 2, 1},
		{"non numeric", "?page=abc&size=xyz", 0, 10, 2, 10},
		{"negative page", "?page=-3", 0, 10, 2, 10},
		{"size too large", "?size=1000", 0, 10, 2, 10},
		{"size zero", "?size=0", 0, 10, 2, 10},
		{"size five", "?page=2&size=5", 2, 5, 3, 1},
		{"huge page", "?page=9223372036854775807", math.MaxInt, 10, 2, 0},
		{"huge page and size", "?page=9223372036854775807&size=7", math.MaxInt, 7, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/1.0/users"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			page := decodeBody[service.Page](t, rec)
			assert.Equal(t, tt.wantPage, page.CurrentPage)
			assert.Equal(t, tt.wantSize, page.PageSize)
			assert.Equal(t, tt.wantTotal, page.TotalPages)
			assert.Len(t, page.Users, tt.wantCount)
		})
	}

	t.Run("second page holds the last user", func(t *testing.T) {
		page := decodeBody[service.Page](t, s.do(t, http.MethodGet, "/api/1.0/users?page=1", nil))
		require.Len(t, page.Users, 1)
		assert.Equal(t, "user11", page.Users[0].Username)
	})

	t.Run("projection excludes secrets", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/1.0/users?size=1", nil)
		var raw struct {
			Users []map[string]any `json:"users"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		require.Len(t, raw.Users, 1)
		assert.Len(t, raw.Users[0], 3)
		assert.Contains(t, raw.Users[0], "id")
		assert.Contains(t, raw.Users[0], "username")
		assert.Contains(t, raw.Users[0], "email")
	})
}

func TestGetUser(t *testing.T) {
	s := newTestServer(t)
	id := s.addActiveUser(t, 1)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/1.0/users", validUser(2)).Code)
	inactive, err := s.users.GetByEmail(context.Background(), "user2@mail.com")
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/1.0/users/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"username":"user1","email":"user1@mail.com"}`, id), rec.Body.String())

	for _, path := range []string{
		fmt.Sprintf("/api/1.0/users/%d", inactive.ID),
		"/api/1.0/users/5000",
		"/api/1.0/users/abc",
	} {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "User not found", decodeBody[ErrorResponse](t, rec).Message)
	}
}

func TestUpdateUser(t *testing.T) {
	s := newTestServer(t)
	id := s.addActiveUser(t, 1)
	otherID := s.addActiveUser(t, 2)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/1.0/users", validUser(3)).Code)
	sleeper, err := s.users.GetByEmail(context.Background(), "user3@mail.com")
	require.NoError(t, err)

	update := map[string]string{"username": "user1-updated"}
	path := func(id int64) string { return fmt.Sprintf("/api/1.0/users/%d", id) }

	forbidden := []struct {
		name string
		path string
		opts []requestOption
	}{
		{"no credentials", path(id), nil},
		{"unknown email", path(id), []requestOption{withBasic("ghost@mail.com", "P4ssword")}},
		{"other user", path(otherID), []requestOption{withBasic("user1@mail.com", "P4ssword")}},
		{"inactive", path(sleeper.ID), []requestOption{withBasic("user3@mail.com", "P4ssword")}},
		{"wrong password", path(id), []requestOption{withBasic("user1@mail.com", "Wr0ngpass")}},
		{"non numeric id", "/api/1.0/users/abc", []requestOption{withBasic("user1@mail.com", "P4ssword")}},
	}

	for _, tt := range forbidden {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPut, tt.path, update, tt.opts...)
			require.Equal(t, http.StatusForbidden, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, "You are not authorized to update user", resp.Message)
			assert.Equal(t, tt.path, resp.Path)
		})
	}

	t.Run("invalid username", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, path(id), map[string]string{"username": "usr"}, withBasic("user1@mail.com", "P4ssword"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Must have min 4 and max 32 characters", decodeBody[ErrorResponse](t, rec).ValidationErrors["username"])
	})

	t.Run("owner update", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, path(id), update, withBasic("user1@mail.com", "P4ssword"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"username":"user1-updated","email":"user1@mail.com"}`, id), rec.Body.String())

		stored, err := s.users.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "user1-updated", stored.Username)
	})

	t.Run("owner update ignores other fields", func(t *testing.T) {
		before, err := s.users.GetByID(context.Background(), otherID)
		require.NoError(t, err)

		body := map[string]any{
			"username": "user2-updated",
			"email":    "hacker@mail.com",
			"password": "Other1234",
			"inactive": true,
		}
		rec := s.do(t, http.MethodPut, path(otherID), body, withBasic("user2@mail.com", "P4ssword"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"username":"user2-updated","email":"user2@mail.com"}`, otherID), rec.Body.String())

		stored, err := s.users.GetByID(context.Background(), otherID)
		require.NoError(t, err)
		assert.Equal(t, "user2-updated", stored.Username)
		assert.Equal(t, before.Email, stored.Email)
		assert.Equal(t, before.PasswordHash, stored.PasswordHash)
		assert.False(t, stored.Inactive)

		rec = s.do(t, http.MethodPost, "/api/1.0/auth", map[string]string{"email": "user2@mail.com", "password": "P4ssword"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuthenticate(t *testing.T) {
	s := newTestServer(t)
	id := s.addActiveUser(t, 1)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/1.0/users", validUser(2)).Code)

	tests := []struct {
		name     string
		email    string
		password string
		status   int
		message  string
	}{
		{"malformed email", "user1", "P4ssword", http.StatusUnauthorized, "Incorrect credentials"},
		{"unknown user", "ghost@mail.com", "P4ssword", http.StatusUnauthorized, "Incorrect credentials"},
		{"wrong password", "user1@mail.com", "Wr0ngpass", http.StatusUnauthorized, "Incorrect credentials"},
		{"inactive", "user2@mail.com", "P4ssword", http.StatusForbidden, "Account is inactive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/1.0/auth", map[string]string{"email": tt.email, "password": tt.password})
			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeBody[ErrorResponse](t, rec).Message)
		})
	}

	t.Run("success", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/1.0/auth", map[string]string{"email": "user1@mail.com", "password": "P4ssword"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"username":"user1"}`, id), rec.Body.String())
	})
}

func TestAmbientRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decodeBody[BuildInfo](t, rec).Version)

	rec = s.do(t, http.MethodGet, "/api/1.0/nowhere", nil, withLanguage("bg"))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Не е намерено", decodeBody[ErrorResponse](t, rec).Message)
	assert.Equal(t, "bg", rec.Header().Get("Content-Language"))

	rec = s.do(t, http.MethodGet, "/api/1.0/users/abc?lang=en&x=1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "/api/1.0/users/abc?lang=en&x=1", decodeBody[ErrorResponse](t, rec).Path)

	rec = s.do(t, http.MethodGet, "/health", nil, func(r *http.Request) { r.Header.Set(RequestIDHeader, "fixed-id") })
	assert.Equal(t, "fixed-id", rec.Header().Get(RequestIDHeader))
}

func TestMetricsRecorded(t *testing.T) {
	s := newTestServer(t)
	s.addActiveUser(t, 1)

	rec := httptest.NewRecorder()
	s.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `hoaxify_users_events_total{event="register",result="success"} 1`)
	assert.Contains(t, body, `hoaxify_users_events_total{event="activate",result="success"} 1`)
	assert.Contains(t, body, `route="/api/1.0/users/token/{token}"`)
}
