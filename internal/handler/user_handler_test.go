package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/botfarm/internal/config"
	"github.com/prn-tf/botfarm/internal/domain"
	"github.com/prn-tf/botfarm/internal/metrics"
	"github.com/prn-tf/botfarm/internal/repository/sqlite"
	"github.com/prn-tf/botfarm/internal/service"
)

type testServer struct {
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	result, err := sqlite.Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "botfarm.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = result.Database.Close() })

	svc := service.NewUserService(result.Repos.User, logger)

	return &testServer{
		handler: NewRouter(RouterConfig{
			UserHandler:   NewUserHandler(UserHandlerConfig{UserService: svc, Logger: logger}),
			HealthHandler: NewHealthHandler(result.Database, logger),
			Metrics:       metrics.New("test", nil),
			AppName:       "BotFarm Service",
			Version:       "test",
			Logger:        logger,
		}),
	}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createBody(projectID uuid.UUID) map[string]any {
	return map[string]any{
		"login":      "a@b.com",
		"password":   "x",
		"project_id": projectID.String(),
		"env":        "prod",
		"domain":     "regular",
	}
}

func (s *testServer) createUser(t *testing.T) domain.User {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/user/create_user", createBody(uuid.New()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[domain.User](t, rec)
}

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)
	projectID := uuid.New()

	body := createBody(projectID)
	body["locktime"] = 999
	body["created_at"] = "2001-01-01T00:00:00Z"

	rec := s.do(t, http.MethodPost, "/user/create_user", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	user := decodeBody[domain.User](t, rec)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "a@b.com", user.Login)
	assert.Equal(t, "x", user.Password)
	assert.Equal(t, projectID, user.ProjectID)
	assert.Equal(t, domain.EnvProd, user.Env)
	assert.Equal(t, domain.DomainRegular, user.Domain)
	assert.Equal(t, int64(0), user.Locktime, "caller-sent locktime is ignored")
	assert.WithinDuration(t, time.Now(), user.CreatedAt, 5*time.Second, "caller-sent created_at is ignored")
}

func TestCreateUser_WithID(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()

	body := createBody(uuid.New())
	body["id"] = id.String()

	rec := s.do(t, http.MethodPost, "/user/create_user", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, id, decodeBody[domain.User](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/user/create_user", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, decodeBody[ErrorResponse](t, rec).StatusCode)
}

func TestCreateUser_UppercaseUUIDs(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()
	projectID := uuid.New()

	body := createBody(projectID)
	body["id"] = strings.ToUpper(id.String())
	body["project_id"] = strings.ToUpper(projectID.String())

	rec := s.do(t, http.MethodPost, "/user/create_user", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	user := decodeBody[domain.User](t, rec)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, projectID, user.ProjectID)

	rec = s.do(t, http.MethodPost, "/user/acquire_lock?user_id="+strings.ToUpper(id.String()), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCreateUser_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(map[string]any)
		raw       string
		wantField string
	}{
		{name: "bad email", mutate: func(b map[string]any) { b["login"] = "nope" }, wantField: "login"},
		{name: "missing password", mutate: func(b map[string]any) { delete(b, "password") }, wantField: "password"},
		{name: "bad project id", mutate: func(b map[string]any) { b["project_id"] = "123" }, wantField: "project_id"},
		{name: "bad env", mutate: func(b map[string]any) { b["env"] = "dev" }, wantField: "env"},
		{name: "bad domain", mutate: func(b map[string]any) { b["domain"] = "shadow" }, wantField: "domain"},
		{name: "bad id", mutate: func(b map[string]any) { b["id"] = "not-a-uuid" }, wantField: "id"},
		{name: "truncated upper project id", mutate: func(b map[string]any) {
			b["project_id"] = strings.ToUpper(uuid.NewString())[:35]
		}, wantField: "project_id"},
		{name: "malformed json", raw: `{"login":`},
		{name: "empty body", raw: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			var body any = tt.raw
			if tt.mutate != nil {
				b := createBody(uuid.New())
				tt.mutate(b)
				body = b
			}

			rec := s.do(t, http.MethodPost, "/user/create_user", body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

			env := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, "HTTP Error", env.Error)
			assert.Equal(t, http.StatusUnprocessableEntity, env.StatusCode)
			assert.Equal(t, "/user/create_user", env.Path)
			assert.Equal(t, http.MethodPost, env.Method)

			if tt.wantField != "" {
				assert.Contains(t, rec.Body.String(), `"field":"`+tt.wantField+`"`)
			}
		})
	}
}

func TestListUsers(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/user/get_users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	created := s.createUser(t)

	rec = s.do(t, http.MethodGet, "/user/get_users", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	users := decodeBody[[]domain.User](t, rec)
	require.Len(t, users, 1)
	assert.Equal(t, created.ID, users[0].ID)
	assert.Equal(t, created.Login, users[0].Login)
	assert.Equal(t, created.ProjectID, users[0].ProjectID)
	assert.Equal(t, created.Env, users[0].Env)
	assert.Equal(t, created.Domain, users[0].Domain)
	assert.Equal(t, int64(0), users[0].Locktime)
}

func TestLockLifecycle(t *testing.T) {
	s := newTestServer(t)
	user := s.createUser(t)
	target := "?user_id=" + user.ID.String()

	rec := s.do(t, http.MethodPost, "/user/acquire_lock"+target, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeBody[LockResponse](t, rec)
	assert.False(t, first.AlreadyLocked)
	assert.Positive(t, first.Locktime)
	assert.Equal(t, "user "+user.ID.String()+" locked", first.Message)

	rec = s.do(t, http.MethodPost, "/user/acquire_lock"+target, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[LockResponse](t, rec)
	assert.True(t, second.AlreadyLocked)
	assert.Equal(t, first.Locktime, second.Locktime)
	assert.Equal(t, "user was already locked", second.Message)

	rec = s.do(t, http.MethodGet, "/user/get_user"+target, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.Locktime, decodeBody[domain.User](t, rec).Locktime)

	rec = s.do(t, http.MethodPost, "/user/release_lock"+target, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	released := decodeBody[UnlockResponse](t, rec)
	assert.False(t, released.AlreadyUnlocked)
	assert.Equal(t, int64(0), released.Locktime)
	assert.Equal(t, "user "+user.ID.String()+" unlocked", released.Message)

	rec = s.do(t, http.MethodPost, "/user/release_lock"+target, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decodeBody[UnlockResponse](t, rec)
	assert.True(t, again.AlreadyUnlocked)
	assert.Equal(t, int64(0), again.Locktime)
	assert.Equal(t, "user was already unlocked", again.Message)
}

func TestLock_Errors(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/user/acquire_lock", "/user/release_lock"} {
		rec := s.do(t, http.MethodPost, path+"?user_id="+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "User not found", decodeBody[ErrorResponse](t, rec).Detail)

		rec = s.do(t, http.MethodPost, path+"?user_id=nope", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, path)

		rec = s.do(t, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, path)
	}

	rec := s.do(t, http.MethodGet, "/user/get_user?user_id="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcquireLock_Concurrent(t *testing.T) {
	s := newTestServer(t)
	user := s.createUser(t)

	const workers = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req := httptest.NewRequest(http.MethodPost, "/user/acquire_lock?user_id="+user.ID.String(), nil)
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				return
			}

			var resp LockResponse
			if json.Unmarshal(rec.Body.Bytes(), &resp) == nil && !resp.AlreadyLocked {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestRouter_Misc(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"BotFarm Service is running","version":"test"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get(ProcessTimeHeader))

	req := httptest.NewRequest(http.MethodGet, "/health/liveness", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	for _, path := range []string{"/health/startup", "/health/readiness"} {
		rec = s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec = s.do(t, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "/nowhere", decodeBody[ErrorResponse](t, rec).Path)

	rec = s.do(t, http.MethodGet, "/user/acquire_lock", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_http_requests_total{method="GET",route="/",status="200"} 1`))
}

type downDB struct{}

func (downDB) Ping(context.Context) error   { return context.DeadlineExceeded }
func (downDB) Health(context.Context) error { return context.DeadlineExceeded }

func TestHealth_Unavailable(t *testing.T) {
	h := NewRouter(RouterConfig{
		HealthHandler: NewHealthHandler(downDB{}, zerolog.Nop()),
		Logger:        zerolog.Nop(),
	})

	for _, path := range []string{"/health/startup", "/health/readiness"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/liveness", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverer(t *testing.T) {
	for _, debug := range []bool{false, true} {
		h := RequestID(Recoverer(zerolog.Nop(), debug)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/user/acquire_lock", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		env := decodeBody[ErrorResponse](t, rec)
		assert.Equal(t, "Internal Server Error", env.Error)
		if debug {
			assert.Equal(t, "panic: boom", env.Detail)
		} else {
			assert.Equal(t, genericErrorDetail, env.Detail)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	assert.Equal(t, "10.0.0.9", clientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
