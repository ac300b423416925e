// Package auth turns Google OAuth credentials into something a scan can use:
// a user profile for an access token, and a cached token for the terminal
// dashboard.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"rejectiondash/internal/model"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	oauth2v2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ProfileResolver maps an access token to the account it belongs to.
type ProfileResolver interface {
	Resolve(ctx context.Context, accessToken string) (model.UserProfile, error)
}

// GoogleResolver resolves profiles with the Google userinfo endpoint.
type GoogleResolver struct {
	opts []option.ClientOption
}

// NewGoogleResolver returns a resolver; opts are appended to every service
// it builds.
func NewGoogleResolver(opts ...option.ClientOption) *GoogleResolver {
	return &GoogleResolver{opts: opts}
}

// Resolve returns the profile for accessToken. A rejected token or a
// profile without an email address is an *AuthError.
func (r *GoogleResolver) Resolve(ctx context.Context, accessToken string) (model.UserProfile, error) {
	if strings.TrimSpace(accessToken) == "" {
		return model.UserProfile{}, &AuthError{Message: "missing access token"}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return r.ResolveSource(ctx, ts)
}

// ResolveSource is Resolve for a token source that may refresh itself.
func (r *GoogleResolver) ResolveSource(ctx context.Context, ts oauth2.TokenSource) (model.UserProfile, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, r.opts...)
	svc, err := oauth2v2.NewService(ctx, opts...)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
			return model.UserProfile{}, &AuthError{Message: "token rejected by userinfo", Err: err}
		}
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			return model.UserProfile{}, &AuthError{Message: "token refresh failed", Err: err}
		}
		return model.UserProfile{}, fmt.Errorf("get userinfo: %w", err)
	}
	if info.Email == "" {
		return model.UserProfile{}, &AuthError{Message: "userinfo has no email address"}
	}
	return model.UserProfile{Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}
