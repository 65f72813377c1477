package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"starblog/internal/api/middleware"
	"starblog/internal/app/service"
	"starblog/internal/common"
	"starblog/internal/common/security"
	"starblog/internal/domain/model"
	"starblog/internal/domain/repository"
	"starblog/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var routerSecret = []byte("router-test-secret")

const testOrigin = "http://localhost:5173"

type testServer struct {
	store   *repository.MemoryStore
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	log := zap.NewNop()
	tokens := security.NewTokenService(routerSecret, 30*time.Minute)
	return &testServer{
		store: store,
		handler: NewRouter(RouterDeps{
			AuthService:    service.NewAuthService(store.Users(), tokens, bcrypt.MinCost, log),
			PostService:    service.NewPostService(store.Posts(), log),
			RatingService:  service.NewRatingService(store.Ratings(), nil, log),
			CookieSecure:   true,
			AllowedOrigins: []string{testOrigin},
			Logger:         log,
		}),
	}
}

func (s *testServer) do(t *testing.T, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) signup(t *testing.T, username, password string) {
	t.Helper()
	body := `{"username":"` + username + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := s.do(t, req, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func (s *testServer) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := s.do(t, req, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	t.Fatal("login did not set the session cookie")
	return nil
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestEndToEndRatingScenario(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice", "secret1")
	s.signup(t, "bob", "secret2")
	alice := s.login(t, "alice", "secret1")
	bob := s.login(t, "bob", "secret2")

	req := httptest.NewRequest(http.MethodPost, "/createPost", strings.NewReader(`{"title":"T","content":"C"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := s.do(t, req, alice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Post created successfully!", decode[common.MessageResponse](t, rr).Message)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	posts := decode[[]model.Post](t, rr)
	require.Len(t, posts, 1)
	assert.Equal(t, "T", posts[0].Title)
	assert.Zero(t, posts[0].Rating)
	postID := posts[0].ID

	rr = s.do(t, httptest.NewRequest(http.MethodPost, "/rate/"+postID+"?rating=4", nil), alice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.InDelta(t, 4.0, decode[model.AverageResponse](t, rr).AverageRating, 1e-9)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/averageRating/"+postID, nil), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 4.0, decode[model.AverageResponse](t, rr).AverageRating, 1e-9)

	rr = s.do(t, httptest.NewRequest(http.MethodPost, "/rate/"+postID+"?rating=2", nil), alice)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, common.ErrAlreadyRated.Error(), decode[common.ErrorResponse](t, rr).Detail)

	req = httptest.NewRequest(http.MethodPost, "/rate/"+postID, strings.NewReader(`{"rating":2}`))
	req.Header.Set("Content-Type", "application/json")
	rr = s.do(t, req, bob)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.InDelta(t, 3.0, decode[model.AverageResponse](t, rr).AverageRating, 1e-9)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/averageRating/"+postID, nil), nil)
	assert.InDelta(t, 3.0, decode[model.AverageResponse](t, rr).AverageRating, 1e-9)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/my-posts", nil), alice)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Post](t, rr), 1)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/my-posts", nil), bob)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

func TestLoginCookieAttributes(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice", "secret1")
	cookie := s.login(t, "alice", "secret1")

	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 1800, cookie.MaxAge)
	assert.NotEmpty(t, cookie.Value)
}

func TestLoginAcceptsJSON(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice", "secret1")

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"secret1"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rr := s.do(t, req, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Login successful", decode[common.MessageResponse](t, rr).Message)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice", "secret1")
	loginFailures := metrics.AuthFailuresTotal.WithLabelValues("login")
	before := testutil.ToFloat64(loginFailures)

	for _, form := range []url.Values{
		{"username": {"alice"}, "password": {"wrong12"}},
		{"username": {"nobody"}, "password": {"secret1"}},
	} {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := s.do(t, req, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "invalid credentials", decode[common.ErrorResponse](t, rr).Detail)
		assert.Empty(t, rr.Result().Cookies())
	}
	assert.Equal(t, before+2, testutil.ToFloat64(loginFailures))

	s.login(t, "alice", "secret1")
	assert.Equal(t, before+2, testutil.ToFloat64(loginFailures))
}

func TestSignupErrors(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice", "secret1")

	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(`{"username":"alice","password":"secret1"}`))
	rr := s.do(t, req, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, common.ErrDuplicateUsername.Error(), decode[common.ErrorResponse](t, rr).Detail)

	req = httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(`{"username":"al","password":"secret1"}`))
	rr = s.do(t, req, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[common.ErrorResponse](t, rr).Detail, "username")

	req = httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(`not json`))
	rr = s.do(t, req, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, httptest.NewRequest(http.MethodPost, "/logout", nil), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestMyPostsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice", "secret1")
	s.signup(t, "carol", "secret3")
	carol := s.login(t, "carol", "secret3")

	expiredToken, err := security.NewTokenService(routerSecret, -time.Minute).Issue("alice")
	require.NoError(t, err)

	user, err := s.store.Users().FindByUsername(t.Context(), "carol")
	require.NoError(t, err)
	s.store.DeleteUser(user.ID)

	cases := map[string]*http.Cookie{
		"no cookie":      nil,
		"expired cookie": {Name: middleware.SessionCookieName, Value: expiredToken},
		"deleted user":   carol,
		"garbage cookie": {Name: middleware.SessionCookieName, Value: "abc"},
	}
	for name, cookie := range cases {
		t.Run(name, func(t *testing.T) {
			rr := s.do(t, httptest.NewRequest(http.MethodGet, "/my-posts", nil), cookie)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, "invalid credentials", decode[common.ErrorResponse](t, rr).Detail)
		})
	}
}

func TestRateErrors(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice", "secret1")
	alice := s.login(t, "alice", "secret1")

	req := httptest.NewRequest(http.MethodPost, "/createPost", strings.NewReader(`{"title":"T"}`))
	require.Equal(t, http.StatusOK, s.do(t, req, alice).Code)
	posts := decode[[]model.Post](t, s.do(t, httptest.NewRequest(http.MethodGet, "/", nil), nil))
	require.Len(t, posts, 1)
	postID := posts[0].ID

	tests := []struct {
		name   string
		target string
		cookie *http.Cookie
		status int
	}{
		{"zero", "/rate/" + postID + "?rating=0", alice, http.StatusBadRequest},
		{"six", "/rate/" + postID + "?rating=6", alice, http.StatusBadRequest},
		{"not a number", "/rate/" + postID + "?rating=four", alice, http.StatusBadRequest},
		{"missing", "/rate/" + postID, alice, http.StatusBadRequest},
		{"unknown post", "/rate/00000000-0000-0000-0000-000000000000?rating=3", alice, http.StatusNotFound},
		{"bad post id", "/rate/42?rating=3", alice, http.StatusNotFound},
		{"no session", "/rate/" + postID + "?rating=3", nil, http.StatusUnauthorized},
		{"out of range without session", "/rate/" + postID + "?rating=6", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, httptest.NewRequest(http.MethodPost, tt.target, nil), tt.cookie)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}

	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/averageRating/00000000-0000-0000-0000-000000000000", nil), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "post not found", decode[common.ErrorResponse](t, rr).Detail)
}

func TestCreatePostValidation(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice", "secret1")
	alice := s.login(t, "alice", "secret1")

	body := `{"title":"` + strings.Repeat("t", 101) + `","content":"c"}`
	rr := s.do(t, httptest.NewRequest(http.MethodPost, "/createPost", strings.NewReader(body)), alice)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, httptest.NewRequest(http.MethodPost, "/createPost", strings.NewReader(`{"title":"x"}`)), nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	s.do(t, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "starblog_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/login", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		return s.do(t, req, nil)
	}

	rr := preflight(testOrigin)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	rr = preflight("https://evil.example.com")
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSCredentialedRequest(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice", "secret1")
	alice := s.login(t, "alice", "secret1")

	req := httptest.NewRequest(http.MethodGet, "/my-posts", nil)
	req.Header.Set("Origin", testOrigin)
	rr := s.do(t, req, alice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rr.Header().Values("Vary"), "Origin")
}
