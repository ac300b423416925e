package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	oauth2v2 "google.golang.org/api/oauth2/v2"
)

// Scopes requested by the dashboard: read-only mail plus the profile.
var Scopes = []string{
	gmailv1.GmailReadonlyScope,
	oauth2v2.OpenIDScope,
	oauth2v2.UserinfoEmailScope,
	oauth2v2.UserinfoProfileScope,
}

const redirectTimeout = 120 * time.Second

// TokenCache persists tokens between runs.
type TokenCache interface {
	LoadToken(ctx context.Context, account string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, account string, tok *oauth2.Token) error
	DeleteToken(ctx context.Context, account string) error
}

// Authenticator obtains a token for the terminal dashboard, from the cache
// when possible and through the browser otherwise.
type Authenticator struct {
	cfg     *oauth2.Config
	cache   TokenCache
	account string
	log     logrus.FieldLogger

	// Prompt shows the consent URL to the user. Defaults to printing on Out.
	Prompt func(authURL string)
	// Pasted, when set, delivers codes typed into another UI.
	Pasted <-chan string
	Out    io.Writer
	In     io.Reader
}

// ConfigFromFile reads a Google "installed app" client secret file.
func ConfigFromFile(path string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", path, err)
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}
	return cfg, nil
}

func NewAuthenticator(cfg *oauth2.Config, cache TokenCache, log logrus.FieldLogger) *Authenticator {
	return &Authenticator{
		cfg:     cfg,
		cache:   cache,
		account: "default",
		log:     log,
		Out:     os.Stderr,
		In:      os.Stdin,
	}
}

// TokenSource returns a refreshing token source whose tokens are written
// back to the cache. valid is called with the candidate source; when it
// fails for a cached token, that token is dropped and the browser flow runs.
func (a *Authenticator) TokenSource(ctx context.Context, valid func(oauth2.TokenSource) error) (oauth2.TokenSource, error) {
	tok, err := a.cache.LoadToken(ctx, a.account)
	if err == nil {
		ts := a.persisting(ctx, tok)
		if valid == nil {
			return ts, nil
		}
		verr := valid(ts)
		if verr == nil {
			return ts, nil
		}
		a.log.WithError(verr).Info("cached token rejected, re-authenticating")
		if err := a.cache.DeleteToken(ctx, a.account); err != nil {
			return nil, err
		}
	} else {
		a.log.WithError(err).Debug("no usable cached token")
	}

	tok, err = a.Login(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.cache.SaveToken(ctx, a.account, tok); err != nil {
		return nil, err
	}
	return a.persisting(ctx, tok), nil
}

func (a *Authenticator) persisting(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return &savingSource{
		base: a.cfg.TokenSource(ctx, tok),
		last: tok.AccessToken,
		save: func(t *oauth2.Token) {
			if err := a.cache.SaveToken(context.WithoutCancel(ctx), a.account, t); err != nil {
				a.log.WithError(err).Warn("persist refreshed token")
			}
		},
	}
}

// savingSource calls save whenever the underlying source hands out a new token.
type savingSource struct {
	base oauth2.TokenSource
	save func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()
	if changed {
		s.save(tok)
	}
	return tok, nil
}

// Login runs the browser consent flow. A loopback server on a random
// localhost port captures the redirect. When Pasted is set, a code or
// redirect URL received on it is accepted at any time; otherwise the user is
// asked to paste one on In if no redirect arrives in time.
func (a *Authenticator) Login(ctx context.Context) (*oauth2.Token, error) {
	cfg := *a.cfg

	redirects := make(chan string, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		a.log.WithError(err).Warn("loopback listener unavailable")
	} else {
		cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/", ln.Addr().(*net.TCPAddr).Port)

		mux := http.NewServeMux()
		srv := &http.Server{
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		}
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authentication complete. You can close this window.")
			select {
			case redirects <- code:
			default:
			}
		})
		go func() { _ = srv.Serve(ln) }()
		defer srv.Shutdown(context.Background())
		a.log.WithField("redirect", cfg.RedirectURL).Info("waiting for oauth redirect")
	}

	a.prompt(cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var timeout <-chan time.Time
	if a.Pasted == nil {
		if ln == nil {
			return a.readPasted(ctx, &cfg)
		}
		timeout = time.After(redirectTimeout)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case code := <-redirects:
		return exchange(ctx, &cfg, code)
	case input := <-a.Pasted:
		code, err := CodeFromInput(input)
		if err != nil {
			return nil, err
		}
		return exchange(ctx, &cfg, code)
	case <-timeout:
		a.log.Warn("timeout waiting for redirect, falling back to manual paste")
		return a.readPasted(ctx, &cfg)
	}
}

func (a *Authenticator) readPasted(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	fmt.Fprintln(a.Out, "Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")
	fmt.Fprint(a.Out, "> ")
	sc := bufio.NewScanner(a.In)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read auth code: %w", err)
		}
		return nil, errors.New("empty authorization code")
	}
	code, err := CodeFromInput(sc.Text())
	if err != nil {
		return nil, err
	}
	return exchange(ctx, cfg, code)
}

func (a *Authenticator) prompt(authURL string) {
	if a.Prompt != nil {
		a.Prompt(authURL)
		return
	}
	fmt.Fprintln(a.Out, "A browser window will open. If it does not, open this URL to authorize the rejection dashboard:")
	fmt.Fprintln(a.Out, authURL)
	if err := OpenBrowser(authURL); err != nil {
		a.log.WithError(err).Debug("open browser")
	}
}

func exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, &AuthError{Message: "token exchange failed", Err: err}
	}
	return tok, nil
}

// CodeFromInput accepts either a bare authorization code or the full
// redirect URL carrying it.
func CodeFromInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return code, nil
}
