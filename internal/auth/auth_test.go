package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestAuthError(t *testing.T) {
	cause := errors.New("401")
	err := fmt.Errorf("scan: %w", &AuthError{Message: "expired", Err: cause})
	if !IsAuthError(err) {
		t.Fatalf("IsAuthError(%v) = false", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable")
	}
	if got := (&AuthError{Message: "expired"}).Error(); got != "expired" {
		t.Fatalf("Error() = %q", got)
	}
	if IsAuthError(errors.New("other")) {
		t.Fatalf("plain error reported as auth error")
	}
}

func TestCodeFromInput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"  4/abc  ", "4/abc", false},
		{"http://127.0.0.1:5555/?state=state-token&code=4%2Fxyz&scope=a", "4/xyz", false},
		{"https://example.com/cb?state=x", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := CodeFromInput(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("CodeFromInput(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("CodeFromInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGoogleResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			fmt.Fprint(w, `{"email":"me@example.com","name":"Me","picture":"https://x/p.png"}`)
		case "Bearer noemail":
			fmt.Fprint(w, `{"name":"Nobody"}`)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
		}
	}))
	defer srv.Close()

	r := NewGoogleResolver(option.WithEndpoint(srv.URL + "/"))
	ctx := context.Background()

	p, err := r.Resolve(ctx, "good")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Email != "me@example.com" || p.Name != "Me" || p.Picture != "https://x/p.png" {
		t.Fatalf("profile = %+v", p)
	}

	for _, tok := range []string{"bad", "noemail", ""} {
		if _, err := r.Resolve(ctx, tok); !IsAuthError(err) {
			t.Fatalf("Resolve(%q) err = %v, want AuthError", tok, err)
		}
	}
}

// tokenServer answers the authorization-code exchange.
func tokenServer(t *testing.T, wantCode string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("code"); got != wantCode {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh",
			"token_type":    "Bearer",
			"refresh_token": "refresh",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// redirectWith simulates the browser following the consent redirect.
func redirectWith(t *testing.T, code string) func(string) {
	return func(authURL string) {
		u, err := url.Parse(authURL)
		if err != nil {
			t.Errorf("parse auth url: %v", err)
			return
		}
		redirect := u.Query().Get("redirect_uri")
		go func() {
			resp, err := http.Get(redirect + "?state=state-token&code=" + url.QueryEscape(code))
			if err != nil {
				t.Errorf("follow redirect: %v", err)
				return
			}
			resp.Body.Close()
		}()
	}
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: tokenURL},
		Scopes:       Scopes,
	}
}

func TestLoginLoopback(t *testing.T) {
	srv := tokenServer(t, "4/code")
	a := NewAuthenticator(testConfig(srv.URL), newMemCache(), quietLogger())
	a.Prompt = redirectWith(t, "4/code")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tok, err := a.Login(ctx)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok.AccessToken != "fresh" || tok.RefreshToken != "refresh" {
		t.Fatalf("token = %+v", tok)
	}
}

func TestLoginExchangeFailure(t *testing.T) {
	srv := tokenServer(t, "4/code")
	a := NewAuthenticator(testConfig(srv.URL), newMemCache(), quietLogger())
	a.Prompt = redirectWith(t, "wrong")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := a.Login(ctx); !IsAuthError(err) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

type memCache struct {
	mu      sync.Mutex
	tokens  map[string]*oauth2.Token
	deletes int
}

func newMemCache() *memCache { return &memCache{tokens: map[string]*oauth2.Token{}} }

func (c *memCache) LoadToken(_ context.Context, account string) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[account]
	if !ok {
		return nil, errors.New("no cached token")
	}
	return tok, nil
}

func (c *memCache) SaveToken(_ context.Context, account string, tok *oauth2.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[account] = tok
	return nil
}

func (c *memCache) DeleteToken(_ context.Context, account string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, account)
	c.deletes++
	return nil
}

func TestTokenSourceUsesValidCache(t *testing.T) {
	cache := newMemCache()
	cache.tokens["default"] = &oauth2.Token{AccessToken: "cached", Expiry: time.Now().Add(time.Hour)}
	a := NewAuthenticator(testConfig("http://127.0.0.1:1/token"), cache, quietLogger())
	a.Prompt = func(string) { t.Errorf("browser flow should not run") }

	ts, err := a.TokenSource(context.Background(), func(ts oauth2.TokenSource) error {
		_, err := ts.Token()
		return err
	})
	if err != nil {
		t.Fatalf("TokenSource: %v", err)
	}
	tok, err := ts.Token()
	if err != nil || tok.AccessToken != "cached" {
		t.Fatalf("token = %+v, %v", tok, err)
	}
}

func TestTokenSourceReauthenticates(t *testing.T) {
	srv := tokenServer(t, "4/code")
	cache := newMemCache()
	cache.tokens["default"] = &oauth2.Token{AccessToken: "stale", Expiry: time.Now().Add(time.Hour)}
	a := NewAuthenticator(testConfig(srv.URL), cache, quietLogger())
	a.Prompt = redirectWith(t, "4/code")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ts, err := a.TokenSource(ctx, func(ts oauth2.TokenSource) error {
		tok, err := ts.Token()
		if err != nil {
			return err
		}
		if tok.AccessToken == "stale" {
			return &AuthError{Message: "rejected"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("TokenSource: %v", err)
	}
	if cache.deletes != 1 {
		t.Fatalf("stale token not deleted")
	}
	tok, err := ts.Token()
	if err != nil || tok.AccessToken != "fresh" {
		t.Fatalf("token = %+v, %v", tok, err)
	}
	if saved := cache.tokens["default"]; saved == nil || saved.AccessToken != "fresh" {
		t.Fatalf("fresh token not cached: %+v", saved)
	}
}

func TestLoginPastedCode(t *testing.T) {
	srv := tokenServer(t, "4/pasted")
	pasted := make(chan string, 1)
	a := NewAuthenticator(testConfig(srv.URL), newMemCache(), quietLogger())
	a.Pasted = pasted
	a.Prompt = func(authURL string) {
		pasted <- "http://127.0.0.1:1/?state=state-token&code=4%2Fpasted"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tok, err := a.Login(ctx)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok.AccessToken != "fresh" {
		t.Fatalf("token = %+v", tok)
	}
}

func TestLoginManualFallback(t *testing.T) {
	srv := tokenServer(t, "4/typed")
	var out strings.Builder
	a := NewAuthenticator(testConfig(srv.URL), newMemCache(), quietLogger())
	a.Out = &out
	a.In = strings.NewReader("4/typed\n")

	cfg := *a.cfg
	tok, err := a.readPasted(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("readPasted: %v", err)
	}
	if tok.AccessToken != "fresh" || !strings.Contains(out.String(), "Paste the AUTH CODE") {
		t.Fatalf("token = %+v, prompt %q", tok, out.String())
	}
}
