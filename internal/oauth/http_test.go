package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamsync/internal/config"
	"teamsync/internal/directory"
	"teamsync/internal/session"
)

type memorySessions struct {
	created map[string]session.Session
	deleted []string
}

func newMemorySessions() *memorySessions {
	return &memorySessions{created: make(map[string]session.Session)}
}

func (s *memorySessions) Create(_ context.Context, sess session.Session) error {
	s.created[sess.SessionID] = sess
	return nil
}

func (s *memorySessions) Get(_ context.Context, sessionID string) (*session.Session, error) {
	sess, ok := s.created[sessionID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *memorySessions) Delete(_ context.Context, sessionID string) error {
	delete(s.created, sessionID)
	s.deleted = append(s.deleted, sessionID)
	return nil
}

// emptyDirectory satisfies directory.Store with no records; the login
// path only ever reads.
type emptyDirectory struct{}

func (emptyDirectory) EnsureOrganization(context.Context, string) (*directory.Organization, error) {
	return nil, directory.ErrNotFound
}
func (emptyDirectory) FindOrganization(context.Context, string) (*directory.Organization, error) {
	return nil, directory.ErrNotFound
}
func (emptyDirectory) ListOrganizations(context.Context) ([]directory.Organization, error) {
	return nil, nil
}
func (emptyDirectory) ListMembers(context.Context, string) ([]directory.Member, error) {
	return nil, nil
}
func (emptyDirectory) FindByExternalID(context.Context, string, string) (*directory.Member, error) {
	return nil, directory.ErrNotFound
}
func (emptyDirectory) FindByEmail(context.Context, string, string) (*directory.Member, error) {
	return nil, directory.ErrNotFound
}
func (emptyDirectory) CreateMember(context.Context, directory.Member, string) (*directory.Member, error) {
	return nil, directory.ErrNotFound
}
func (emptyDirectory) UpdateMember(context.Context, directory.Member) error {
	return directory.ErrNotFound
}

func newFlowServer(t *testing.T) (*gin.Engine, *memorySessions) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fp := newFakeProvider(t)
	client := newTestClient(t, fp)
	sessions := newMemorySessions()

	engine := gin.New()
	NewHandler(client, sessions, emptyDirectory{}, config.Config{
		RedirectFallback: "https://app.example.com/oauth/callback",
	}).RegisterRoutes(engine)

	return engine, sessions
}

func get(engine *gin.Engine, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func loginCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == session.LoginCookieName {
			return c
		}
	}
	t.Fatal("login cookie not set")
	return nil
}

func TestLoginRedirectsToProvider(t *testing.T) {
	engine, _ := newFlowServer(t)

	w := get(engine, "/oauth/login/acme")

	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Len(t, loc.Query().Get("state"), 64)

	cookie := loginCookie(t, w)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)
}

func TestCallbackWithoutLoginCookie(t *testing.T) {
	engine, _ := newFlowServer(t)

	w := get(engine, "/oauth/callback?state=whatever&code=abc")

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "start over")
}

func TestCallbackRejectsForgedState(t *testing.T) {
	engine, _ := newFlowServer(t)

	login := get(engine, "/oauth/login/acme")
	cookie := loginCookie(t, login)

	w := get(engine, "/oauth/callback?state=forged&code=abc", cookie)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotContains(t, w.Body.String(), "mismatch", "diagnostics stay server-side")

	// The state was consumed; replaying the real one now fails too.
	loc, _ := url.Parse(login.Header().Get("Location"))
	realState := loc.Query().Get("state")
	w = get(engine, "/oauth/callback?state="+realState+"&code=abc", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCallbackProviderErrorRedirectsToLogin(t *testing.T) {
	engine, _ := newFlowServer(t)

	login := get(engine, "/oauth/login/acme")
	cookie := loginCookie(t, login)
	loc, _ := url.Parse(login.Header().Get("Location"))
	state := loc.Query().Get("state")

	w := get(engine, "/oauth/callback?state="+state+"&error=access_denied", cookie)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestCallbackWithoutCodeOrError(t *testing.T) {
	engine, _ := newFlowServer(t)

	login := get(engine, "/oauth/login/acme")
	cookie := loginCookie(t, login)
	loc, _ := url.Parse(login.Header().Get("Location"))
	state := loc.Query().Get("state")

	w := get(engine, "/oauth/callback?state="+state, cookie)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout(t *testing.T) {
	engine, sessions := newFlowServer(t)
	require.NoError(t, sessions.Create(context.Background(), session.Session{SessionID: "sid-1", ExternalID: "U1"}))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(""))
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sid-1"})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"sid-1"}, sessions.deleted)

	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "session cookie must be expired on logout")
}
