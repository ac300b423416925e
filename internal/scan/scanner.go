// Package scan runs a rejection scan over a Gmail mailbox: list candidate
// messages, fetch and classify each one with bounded concurrency, and fold
// the results into RejectionStats.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rejectiondash/internal/auth"
	"rejectiondash/internal/gmail"
	"rejectiondash/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options tune a Scanner. Zero values fall back to the defaults below.
type Options struct {
	Concurrency  int    // in-flight message fetches, default 1
	MaxPages     int    // list pages read at most, default 10
	PageSize     int64  // ids per list page, default and max 500
	After        string // YYYY/MM/DD lower bound of the search
	NotableLimit int    // default and max 5
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.MaxPages < 1 {
		o.MaxPages = 10
	}
	if o.PageSize < 1 || o.PageSize > gmail.MaxPageSize {
		o.PageSize = gmail.MaxPageSize
	}
	if o.NotableLimit < 1 || o.NotableLimit > MaxNotable {
		o.NotableLimit = MaxNotable
	}
	return o
}

// MailboxFactory opens the mail service for one access token.
type MailboxFactory func(ctx context.Context, accessToken string) (gmail.Mailbox, error)

// Scanner is safe for concurrent use; each Scan call is independent.
type Scanner struct {
	query      SearchQuery
	opts       Options
	newMailbox MailboxFactory
	log        logrus.FieldLogger
	progress   func(Progress)
}

func NewScanner(opts Options, newMailbox MailboxFactory, log logrus.FieldLogger) *Scanner {
	opts = opts.withDefaults()
	return &Scanner{
		query:      BuildQuery(opts.After),
		opts:       opts,
		newMailbox: newMailbox,
		log:        log,
	}
}

// WithProgress returns a copy of s that reports progress to fn.
func (s *Scanner) WithProgress(fn func(Progress)) *Scanner {
	c := *s
	c.progress = fn
	return &c
}

func (s *Scanner) Query() SearchQuery { return s.query }

// Scan produces the rejection statistics for the mailbox behind
// accessToken. It returns either complete stats or exactly one error:
// *auth.AuthError, *gmail.UpstreamListError or *UnexpectedError.
//
// Once listing has finished every message is processed even if ctx is
// cancelled; a scan is all or nothing.
func (s *Scanner) Scan(ctx context.Context, accessToken string, profile model.UserProfile) (stats model.RejectionStats, err error) {
	scanID := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{"scan_id": scanID, "user": profile.Email})

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("scan panicked: %v", r)
			stats = model.RejectionStats{}
			err = &UnexpectedError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if strings.TrimSpace(accessToken) == "" {
		return model.RejectionStats{}, &auth.AuthError{Message: "Invalid or expired credentials. Please re-authenticate."}
	}

	mb, err := s.newMailbox(ctx, accessToken)
	if err != nil {
		return model.RejectionStats{}, &UnexpectedError{Err: err}
	}
	fetcher := gmail.NewFetcher(mb, log)

	start := time.Now()
	s.report(Progress{Phase: PhaseListing})
	log.WithField("query", s.query).Info("listing candidate messages")
	refs, err := fetcher.FetchPages(ctx, string(s.query), s.opts.PageSize, s.opts.MaxPages)
	if err != nil {
		log.WithError(err).Error("message listing failed")
		return model.RejectionStats{}, classifyListError(err)
	}
	log.WithField("messages", len(refs)).Info("listing complete")

	sched := NewScheduler(fetcher, s.opts.Concurrency, log, s.progress)
	outcomes, err := sched.Run(context.WithoutCancel(ctx), refs)
	if err != nil {
		return model.RejectionStats{}, &UnexpectedError{Err: err}
	}

	records := Records(outcomes)
	stats = Aggregate(records, profile, s.opts.NotableLimit)
	stats.ScanID = scanID

	skipped := make(logrus.Fields)
	for _, o := range outcomes {
		if o.Skip != SkipNone {
			k := "skipped_" + o.Skip.String()
			n, _ := skipped[k].(int)
			skipped[k] = n + 1
		}
	}
	log.WithFields(skipped).WithFields(logrus.Fields{
		"rejections": stats.TotalRejections,
		"elapsed":    time.Since(start).Round(time.Millisecond).String(),
	}).Info("scan complete")

	s.report(Progress{Phase: PhaseDone, Done: len(refs), Total: len(refs)})
	return stats, nil
}

func (s *Scanner) report(p Progress) {
	if s.progress != nil {
		s.progress(p)
	}
}

func classifyListError(err error) error {
	if gmail.IsUnauthorized(err) {
		return &auth.AuthError{Message: "Invalid or expired credentials. Please re-authenticate.", Err: err}
	}
	var listErr *gmail.UpstreamListError
	if errors.As(err, &listErr) {
		return listErr
	}
	return &UnexpectedError{Err: err}
}
