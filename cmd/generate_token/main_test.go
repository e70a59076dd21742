package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeTokenEndpoint issues a fixed token for any authorization code.
func fakeTokenEndpoint(t *testing.T, refresh string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access",
			"refresh_token": refresh,
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// browser simulates the user granting consent: it follows the redirect URI
// embedded in the consent URL.
func browser(t *testing.T, query url.Values) func(string) {
	return func(consentURL string) {
		u, err := url.Parse(consentURL)
		require.NoError(t, err)
		redirect := u.Query().Get("redirect_uri")
		q := url.Values{"state": {u.Query().Get("state")}}
		for k, v := range query {
			q[k] = v
		}
		go func() {
			resp, err := http.Get(redirect + "?" + q.Encode())
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example.test/auth", TokenURL: tokenURL},
		Scopes:       []string{"https://www.googleapis.com/auth/drive"},
	}
}

func TestAuthorize(t *testing.T) {
	tokenSrv := fakeTokenEndpoint(t, "refresh")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tok, err := authorize(ctx, testConfig(tokenSrv.URL), browser(t, url.Values{"code": {"the-code"}}))
	require.NoError(t, err)
	assert.Equal(t, "access", tok.AccessToken)
	assert.Equal(t, "refresh", tok.RefreshToken)
}

func TestAuthorize_RepeatedRedirects(t *testing.T) {
	tokenSrv := fakeTokenEndpoint(t, "refresh")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The user reloads the redirect page before the first one is consumed.
	client := &http.Client{Timeout: 2 * time.Second}
	var statuses []int
	show := func(consentURL string) {
		u, err := url.Parse(consentURL)
		require.NoError(t, err)
		q := url.Values{"state": {u.Query().Get("state")}, "code": {"the-code"}}
		for i := 0; i < 3; i++ {
			resp, err := client.Get(u.Query().Get("redirect_uri") + "?" + q.Encode())
			require.NoError(t, err, "redirect %d must be answered", i+1)
			statuses = append(statuses, resp.StatusCode)
			resp.Body.Close()
		}
	}

	tok, err := authorize(ctx, testConfig(tokenSrv.URL), show)
	require.NoError(t, err)
	assert.Equal(t, "refresh", tok.RefreshToken)
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusOK}, statuses)
}

func TestAuthorize_Denied(t *testing.T) {
	tokenSrv := fakeTokenEndpoint(t, "refresh")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := authorize(ctx, testConfig(tokenSrv.URL), browser(t, url.Values{"error": {"access_denied"}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")
}

func TestAuthorize_NoRefreshToken(t *testing.T) {
	tokenSrv := fakeTokenEndpoint(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := authorize(ctx, testConfig(tokenSrv.URL), browser(t, url.Values{"code": {"the-code"}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no refresh token")
}

func TestAuthorize_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := authorize(ctx, testConfig("http://127.0.0.1:1/token"), func(string) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
