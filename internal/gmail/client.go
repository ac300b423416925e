package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// MaxPageSize is the largest page the Gmail list endpoint accepts.
const MaxPageSize = 500

// requestTimeout bounds every individual Gmail API call.
const requestTimeout = 30 * time.Second

// Mailbox is the part of the Gmail API a scan depends on.
type Mailbox interface {
	// List returns one page of message ids matching query.
	List(ctx context.Context, query string, pageSize int64, pageToken string) (*gmailv1.ListMessagesResponse, error)
	// Get returns the full message: headers, part tree and snippet.
	Get(ctx context.Context, id string) (*gmailv1.Message, error)
}

// APIMailbox implements Mailbox on top of the Gmail REST API for the
// authenticated user ("me").
type APIMailbox struct {
	svc *gmailv1.Service
}

// NewMailbox builds a Gmail client that authenticates every call with ts.
func NewMailbox(ctx context.Context, ts oauth2.TokenSource) (*APIMailbox, error) {
	client := &http.Client{
		Timeout:   requestTimeout,
		Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
	}
	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &APIMailbox{svc: svc}, nil
}

// NewMailboxForToken is NewMailbox for a bare access token that will not be
// refreshed.
func NewMailboxForToken(ctx context.Context, accessToken string) (Mailbox, error) {
	return NewMailbox(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
}

func (m *APIMailbox) List(ctx context.Context, query string, pageSize int64, pageToken string) (*gmailv1.ListMessagesResponse, error) {
	call := m.svc.Users.Messages.List("me").Q(query).MaxResults(pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Context(ctx).Do()
}

func (m *APIMailbox) Get(ctx context.Context, id string) (*gmailv1.Message, error) {
	return m.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
}

// IsUnauthorized reports whether err carries a Google API 401 response.
func IsUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}
