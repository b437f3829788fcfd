package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v71/github"
	"github.com/mscno/ghsync/pkg/oauthstate"
	"github.com/mscno/ghsync/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": "gho_exchanged",
			"token_type":   "bearer",
			"scope":        "read:org,repo",
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestOAuth(t *testing.T, f *serviceFixture) (*server.OAuth, *oauthstate.Signer) {
	t.Helper()
	ts := newTokenServer(t)
	states, err := oauthstate.NewSigner("test-secret", time.Minute)
	require.NoError(t, err)
	oauth, err := server.NewOAuth(server.OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://api.test/api/github/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  ts.URL + "/login/oauth/authorize",
			TokenURL: ts.URL + "/login/oauth/access_token",
		},
		FrontendURL: "http://frontend.test",
		States:      states,
		NewGitHub:   f.gh.factory(),
	}, f.svc, nil)
	require.NoError(t, err)
	return oauth, states
}

func TestAuthURLEndpoint(t *testing.T) {
	f := newServiceFixture(t, &fakeGitHub{}, nil)
	oauth, states := newTestOAuth(t, f)
	srv := newTestHTTP(t, f, oauth)

	rec, body := do(t, srv, http.MethodGet, "/api/github/auth-url")
	require.Equal(t, http.StatusOK, rec.Code)
	u, err := url.Parse(body["authUrl"].(string))
	require.NoError(t, err)
	assert.Equal(t, "/login/oauth/authorize", u.Path)
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "read:org read:user repo user:email", u.Query().Get("scope"))
	_, err = states.Verify(u.Query().Get("state"))
	assert.NoError(t, err)
}

func callback(t *testing.T, srv http.Handler, query url.Values) *url.URL {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/github/callback?"+query.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc
}

func TestCallbackAuthorizes(t *testing.T) {
	gh := &fakeGitHub{user: &github.User{
		ID:        github.Ptr(int64(583231)),
		Login:     github.Ptr("octocat"),
		AvatarURL: github.Ptr("https://avatars.example.com/octocat"),
		Name:      github.Ptr("The Octocat"),
	}}
	f := newServiceFixture(t, gh, nil)
	oauth, states := newTestOAuth(t, f)
	srv := newTestHTTP(t, f, oauth)

	state, err := states.Issue("/settings/integrations")
	require.NoError(t, err)
	loc := callback(t, srv, url.Values{"code": {"good-code"}, "state": {state}})
	assert.Equal(t, "frontend.test", loc.Host)
	assert.Equal(t, "/settings/integrations", loc.Path)
	assert.Equal(t, "true", loc.Query().Get("success"))
	assert.Equal(t, "583231", loc.Query().Get("userId"))

	f.svc.Wait()
	stored, err := f.integrations.GetIntegration(context.Background(), "583231")
	require.NoError(t, err)
	assert.Equal(t, "octocat", stored.Username)
	assert.Equal(t, "gho_exchanged", stored.AccessToken)
	assert.Equal(t, "read:org,repo", stored.Scope)
	assert.Equal(t, "The Octocat", stored.Name)
	assert.True(t, stored.IsActive)
	assert.NotNil(t, stored.LastSyncedAt)
}

func TestCallbackFailures(t *testing.T) {
	gh := &fakeGitHub{user: &github.User{ID: github.Ptr(int64(1)), Login: github.Ptr("octocat")}}
	f := newServiceFixture(t, gh, nil)
	oauth, states := newTestOAuth(t, f)
	srv := newTestHTTP(t, f, oauth)
	state, err := states.Issue("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		query  url.Values
		reason string
	}{
		{"denied", url.Values{"error": {"access_denied"}, "state": {state}}, "access_denied"},
		{"forged state", url.Values{"code": {"good-code"}, "state": {"forged"}}, "invalid_state"},
		{"missing code", url.Values{"state": {state}}, "missing_code"},
		{"bad code", url.Values{"code": {"bad-code"}, "state": {state}}, "token_exchange_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := callback(t, srv, tt.query)
			assert.Equal(t, "/integrations", loc.Path)
			assert.Equal(t, "false", loc.Query().Get("success"))
			assert.Equal(t, tt.reason, loc.Query().Get("error"))
		})
	}

	all, err := f.integrations.ListIntegrations(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCallbackRejectsOffsiteReturn(t *testing.T) {
	gh := &fakeGitHub{user: &github.User{ID: github.Ptr(int64(1)), Login: github.Ptr("octocat")}}
	f := newServiceFixture(t, gh, nil)
	oauth, states := newTestOAuth(t, f)
	srv := newTestHTTP(t, f, oauth)

	state, err := states.Issue("//evil.example.com/steal")
	require.NoError(t, err)
	loc := callback(t, srv, url.Values{"code": {"good-code"}, "state": {state}})
	assert.Equal(t, "frontend.test", loc.Host)
	assert.Equal(t, "/integrations", loc.Path)
	f.svc.Wait()
}
