package scan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"rejectiondash/internal/auth"
	"rejectiondash/internal/gmail"
	"rejectiondash/internal/model"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

func factoryFor(mb gmail.Mailbox) MailboxFactory {
	return func(context.Context, string) (gmail.Mailbox, error) { return mb, nil }
}

func TestScanEndToEnd(t *testing.T) {
	mb := &stubMailbox{
		ids:     []string{"a", "b", "c", "d", "e"},
		pageLen: 2,
		messages: map[string]*gmailv1.Message{
			"a": mail("Google Careers <noreply@google.com>", "Tue, 2 Apr 2024 10:00:00 -0700 (PDT)", "Unfortunately we will not proceed."),
			"b": mail("hr@startup.io", "Mon, 15 Jan 2024 09:30:00 +0000", "After careful consideration, we chose others."),
			"c": mail("hr@startup.io", "", "We regret to inform you."),
			"d": mail("friend@example.com", "Mon, 15 Jan 2024 09:30:00 +0000", "Lunch on Friday?"),
			// "e" is missing and fails to fetch
		},
	}
	profile := model.UserProfile{Email: "me@example.com", Name: "Me"}

	var mu sync.Mutex
	var phases []string
	s := NewScanner(Options{Concurrency: 3}, factoryFor(mb), quietLogger()).WithProgress(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	})

	stats, err := s.Scan(context.Background(), "token", profile)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if mb.lists != 3 {
		t.Fatalf("list calls = %d, want 3", mb.lists)
	}
	if stats.TotalRejections != 2 {
		t.Fatalf("total = %d, want 2", stats.TotalRejections)
	}
	if stats.RejectionsPerMonth.Get("2024-04") != 1 || stats.RejectionsPerMonth.Get("2024-01") != 1 {
		t.Fatalf("per month = %+v", stats.RejectionsPerMonth)
	}
	if stats.FANGRejectionCount != 1 {
		t.Fatalf("fang = %d", stats.FANGRejectionCount)
	}
	if len(stats.NotableRejections) != 2 || stats.NotableRejections[0].Sender != "noreply@google.com" {
		t.Fatalf("notable = %+v", stats.NotableRejections)
	}
	if stats.UserProfile != profile || stats.ScanID == "" {
		t.Fatalf("profile/scan id not set: %+v", stats)
	}
	if fmt.Sprint(phases) != "[listing fetching done]" {
		t.Fatalf("phases = %v", phases)
	}
}

func TestScanErrors(t *testing.T) {
	unauthorized := &googleapi.Error{Code: http.StatusUnauthorized, Message: "invalid credentials"}
	tests := []struct {
		name    string
		token   string
		factory MailboxFactory
		check   func(error) bool
	}{
		{
			name:    "empty token",
			token:   "  ",
			factory: factoryFor(&stubMailbox{}),
			check:   func(err error) bool { return auth.IsAuthError(err) },
		},
		{
			name:    "list rejected with 401",
			token:   "expired",
			factory: factoryFor(&stubMailbox{listErr: unauthorized}),
			check: func(err error) bool {
				var ae *auth.AuthError
				return errors.As(err, &ae) && errors.Is(err, unauthorized)
			},
		},
		{
			name:    "list failure",
			token:   "token",
			factory: factoryFor(&stubMailbox{listErr: errors.New("503 backend error")}),
			check: func(err error) bool {
				var le *gmail.UpstreamListError
				return errors.As(err, &le) && le.Page == 1
			},
		},
		{
			name:  "mailbox cannot be opened",
			token: "token",
			factory: func(context.Context, string) (gmail.Mailbox, error) {
				return nil, errors.New("no transport")
			},
			check: func(err error) bool {
				var ue *UnexpectedError
				return errors.As(err, &ue)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScanner(Options{}, tt.factory, quietLogger())
			stats, err := s.Scan(context.Background(), tt.token, model.UserProfile{})
			if err == nil || !tt.check(err) {
				t.Fatalf("err = %v (%T)", err, err)
			}
			if stats.TotalRejections != 0 || stats.NotableRejections != nil {
				t.Fatalf("stats returned alongside error: %+v", stats)
			}
		})
	}
}

func TestScanCancelledAfterListingStillCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mb := &stubMailbox{
		ids: []string{"a"},
		messages: map[string]*gmailv1.Message{
			"a": mail("hr@x.com", "Mon, 15 Jan 2024 09:30:00 +0000", "Unfortunately not."),
		},
	}
	s := NewScanner(Options{}, factoryFor(mb), quietLogger()).WithProgress(func(p Progress) {
		if p.Phase == PhaseFetching && p.Done == 0 {
			cancel()
		}
	})
	stats, err := s.Scan(ctx, "token", model.UserProfile{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if stats.TotalRejections != 1 {
		t.Fatalf("total = %d, want 1", stats.TotalRejections)
	}
}
