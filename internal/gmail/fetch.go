package gmail

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"rejectiondash/internal/model"
	"rejectiondash/internal/util"

	"github.com/sirupsen/logrus"
)

// UpstreamListError reports a failed list call. The whole listing is
// abandoned; no partial id list is returned alongside it.
type UpstreamListError struct {
	Page int
	Err  error
}

func (e *UpstreamListError) Error() string {
	return fmt.Sprintf("list messages (page %d): %v", e.Page, e.Err)
}

func (e *UpstreamListError) Unwrap() error { return e.Err }

// Fetcher pages through search results and loads single messages.
type Fetcher struct {
	mailbox Mailbox
	log     logrus.FieldLogger
}

func NewFetcher(mb Mailbox, log logrus.FieldLogger) *Fetcher {
	return &Fetcher{mailbox: mb, log: log}
}

// FetchPages lists every message matching query, one page after another,
// until Gmail stops returning a page token or maxPages pages have been read.
// Pages past the cap are never requested.
func (f *Fetcher) FetchPages(ctx context.Context, query string, pageSize int64, maxPages int) ([]model.MessageRef, error) {
	if maxPages < 1 {
		maxPages = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	refs := []model.MessageRef{}
	pageToken := ""
	for page := 1; page <= maxPages; page++ {
		resp, err := f.mailbox.List(ctx, query, pageSize, pageToken)
		if err != nil {
			return nil, &UpstreamListError{Page: page, Err: err}
		}
		for _, m := range resp.Messages {
			if m == nil || m.Id == "" {
				continue
			}
			refs = append(refs, model.MessageRef{ID: m.Id, Page: page})
		}
		f.log.WithFields(logrus.Fields{
			"page":     page,
			"on_page":  len(resp.Messages),
			"total":    len(refs),
			"has_next": resp.NextPageToken != "",
		}).Debug("listed page")

		if resp.NextPageToken == "" {
			return refs, nil
		}
		pageToken = resp.NextPageToken
	}
	f.log.WithField("max_pages", maxPages).Info("page cap reached, remaining pages skipped")
	return refs, nil
}

// FetchDetail loads one message and extracts sender, body and timestamp.
// It never fails: a broken fetch comes back with Err set and no other data.
func (f *Fetcher) FetchDetail(ctx context.Context, id string) model.MessageDetail {
	msg, err := f.mailbox.Get(ctx, id)
	if err != nil {
		f.log.WithError(err).WithField("message_id", id).Warn("fetch message failed")
		return model.MessageDetail{Err: fmt.Errorf("get message %s: %w", id, err)}
	}

	var from, date string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if h == nil {
				continue
			}
			switch strings.ToLower(h.Name) {
			case "from":
				from = h.Value
			case "date":
				date = h.Value
			}
		}
	}

	detail := model.MessageDetail{
		Sender: util.SenderAddress(from),
		Body:   DecodeBody(msg),
	}
	if date != "" {
		if ts, ok := ParseDate(date); ok {
			detail.Timestamp = ts
		} else {
			f.log.WithFields(logrus.Fields{"message_id": id, "date": date}).Debug("unparseable Date header")
		}
	}
	return detail
}

var trailingZoneName = regexp.MustCompile(`\s*\(.*\)\s*$`)

// Tried in order; the first layout that parses wins.
var dateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05Z07:00",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// ParseDate parses a Date header value such as
// "Tue, 2 Apr 2024 10:00:00 -0700 (PDT)". The offset of the header is kept,
// so the month of the result is the sender's local month.
func ParseDate(h string) (time.Time, bool) {
	h = strings.TrimSpace(trailingZoneName.ReplaceAllString(h, ""))
	if h == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, h); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
