package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos/los-coach/internal/domain"
	"github.com/lifeos/los-coach/internal/fixtures"
	"github.com/lifeos/los-coach/internal/store"
)

type failingRepo struct {
	store.Repository
}

func (failingRepo) GetProfile(context.Context, string) (*domain.Profile, error) {
	return nil, errors.New("db down")
}

func loadSeed(t *testing.T) *fixtures.Seed {
	t.Helper()
	seed, err := fixtures.Load()
	require.NoError(t, err)
	return seed
}

func TestMiddleware_NewDeviceGetsCookieAndProfile(t *testing.T) {
	t.Parallel()
	repo := store.NewMemory()

	var gotUser, gotSession, gotName string
	var gotMinted bool
	h := Middleware(repo, loadSeed(t), true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
		gotName = UsernameFromContext(r.Context())
		gotMinted = IsMintedFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, isValidAnonID(gotUser), "unexpected user id %q", gotUser)
	assert.Equal(t, DefaultSessionIDValue, gotSession)
	assert.Equal(t, "anon-"+gotUser[len(gotUser)-8:], gotName)
	assert.True(t, gotMinted)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AnonCookieName, cookies[0].Name)
	assert.Equal(t, gotUser, cookies[0].Value)
	assert.False(t, cookies[0].Secure)

	profile, err := repo.GetProfile(context.Background(), gotUser)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.NotEmpty(t, profile.Skills)
	assert.NotEmpty(t, profile.Goals)
}

func TestMiddleware_ReusesCookieAndKeepsProfile(t *testing.T) {
	t.Parallel()
	repo := store.NewMemory()
	const id = "anon_0123456789abcdef0123456789abcdef"

	existing := &domain.Profile{UserID: id, Skills: []domain.Skill{{ID: "x", Name: "Custom"}}, UpdatedAt: time.Now()}
	require.NoError(t, repo.UpsertProfile(context.Background(), existing))

	var gotUser, gotSession string
	gotMinted := true
	h := Middleware(repo, loadSeed(t), false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
		gotMinted = IsMintedFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	req.Header.Set(SessionHeaderName, "tab-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, id, gotUser)
	assert.Equal(t, "tab-42", gotSession)
	assert.False(t, gotMinted)
	assert.True(t, w.Result().Cookies()[0].Secure)

	profile, err := repo.GetProfile(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, profile.Skills, 1)
	assert.Equal(t, "Custom", profile.Skills[0].Name)
}

func TestMiddleware_RepoFailure(t *testing.T) {
	t.Parallel()
	h := Middleware(failingRepo{}, loadSeed(t), true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSanitizeSessionID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc-1", sanitizeSessionID(" abc-1 "))
	assert.Equal(t, DefaultSessionIDValue, sanitizeSessionID(""))
	assert.Equal(t, DefaultSessionIDValue, sanitizeSessionID("../../etc/passwd"))
}

func TestIPFromRequest(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", IPFromRequest(r))
}
