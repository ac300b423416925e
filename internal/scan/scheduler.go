package scan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"rejectiondash/internal/classify"
	"rejectiondash/internal/model"
	"rejectiondash/internal/util"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	snippetLength = 100
	unknownSender = "Unknown Sender"
	progressEvery = 50
)

// Progress phases reported while a scan runs.
const (
	PhaseListing  = "listing"
	PhaseFetching = "fetching"
	PhaseDone     = "done"
)

type Progress struct {
	Phase string
	Done  int
	Total int
}

// DetailFetcher loads one message. Implementations must not fail; problems
// are reported through MessageDetail.Err.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, id string) model.MessageDetail
}

// Outcome is the result for one message id. Record is only meaningful when
// Skip is SkipNone.
type Outcome struct {
	Ref    model.MessageRef
	Seq    int
	Record model.RejectionRecord
	Skip   SkipReason
}

// Scheduler runs fetch+classify for many ids with at most limit in flight.
type Scheduler struct {
	fetcher  DetailFetcher
	limit    int
	log      logrus.FieldLogger
	progress func(Progress)
}

// NewScheduler returns a scheduler; progress, when set, may be called from
// several goroutines at once.
func NewScheduler(f DetailFetcher, limit int, log logrus.FieldLogger, progress func(Progress)) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	return &Scheduler{fetcher: f, limit: limit, log: log, progress: progress}
}

// Run processes every ref and returns one Outcome per ref, in ref order,
// whatever order the work completed in. A failing id only affects its own
// Outcome. The error is non-nil only when ctx ends before every id could
// be dispatched; in-flight work is still waited for.
func (s *Scheduler) Run(ctx context.Context, refs []model.MessageRef) ([]Outcome, error) {
	sem := semaphore.NewWeighted(int64(s.limit))
	outcomes := make([]Outcome, len(refs))
	total := len(refs)
	var done atomic.Int64
	var wg sync.WaitGroup

	s.report(Progress{Phase: PhaseFetching, Total: total})
	for i, ref := range refs {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, fmt.Errorf("dispatch message %d of %d: %w", i+1, total, err)
		}
		wg.Add(1)
		go func(seq int, ref model.MessageRef) {
			defer wg.Done()
			defer sem.Release(1)

			outcomes[seq] = s.process(ctx, seq, ref)

			n := int(done.Add(1))
			if n%progressEvery == 0 {
				s.log.WithFields(logrus.Fields{"done": n, "total": total}).Info("processing messages")
			}
			s.report(Progress{Phase: PhaseFetching, Done: n, Total: total})
		}(i, ref)
	}
	wg.Wait()
	return outcomes, nil
}

func (s *Scheduler) process(ctx context.Context, seq int, ref model.MessageRef) (out Outcome) {
	out = Outcome{Ref: ref, Seq: seq}
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("message_id", ref.ID).Errorf("recovered while processing message: %v", r)
			out.Record = model.RejectionRecord{}
			out.Skip = SkipFetchFailed
		}
	}()

	detail := s.fetcher.FetchDetail(ctx, ref.ID)
	out.Record, out.Skip = Evaluate(detail, seq)
	if out.Skip != SkipNone && out.Skip != SkipNotRejection {
		s.log.WithFields(logrus.Fields{"message_id": ref.ID, "reason": out.Skip}).Debug("message skipped")
	}
	return out
}

func (s *Scheduler) report(p Progress) {
	if s.progress != nil {
		s.progress(p)
	}
}

// Evaluate turns a fetched message into a rejection record, or says why it
// cannot be one.
func Evaluate(d model.MessageDetail, seq int) (model.RejectionRecord, SkipReason) {
	switch {
	case d.Err != nil:
		return model.RejectionRecord{}, SkipFetchFailed
	case d.Body == "":
		return model.RejectionRecord{}, SkipNoBody
	case !d.HasTimestamp():
		return model.RejectionRecord{}, SkipNoTimestamp
	}

	verdict := classify.Classify(d.Body, d.Sender)
	if !verdict.IsRejection {
		return model.RejectionRecord{}, SkipNotRejection
	}

	sender := d.Sender
	if sender == "" {
		sender = unknownSender
	}
	return model.RejectionRecord{
		MonthKey:  d.Timestamp.Format("2006-01"),
		Sender:    sender,
		Snippet:   util.Truncate(d.Body, snippetLength),
		Tags:      verdict.Tags,
		Timestamp: d.Timestamp,
		Seq:       seq,
	}, SkipNone
}

// Records keeps the outcomes that produced a record, in dispatch order.
func Records(outcomes []Outcome) []model.RejectionRecord {
	var out []model.RejectionRecord
	for _, o := range outcomes {
		if o.Skip == SkipNone {
			out = append(out, o.Record)
		}
	}
	return out
}
