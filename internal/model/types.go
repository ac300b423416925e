package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// UserProfile is the account the scan runs for, as resolved by the auth layer.
type UserProfile struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// MessageRef is a message id discovered while paging through search results.
type MessageRef struct {
	ID   string
	Page int // 1-based page the id was listed on
}

// MessageDetail holds what a scan needs from one message. Empty Sender/Body
// and a zero Timestamp mean the value was absent. Err is set when the fetch
// itself failed; all other fields are then empty.
type MessageDetail struct {
	Sender    string
	Body      string
	Timestamp time.Time
	Err       error
}

// HasTimestamp reports whether the Date header was parsed.
func (d MessageDetail) HasTimestamp() bool { return !d.Timestamp.IsZero() }

type Tag string

const (
	TagFANG           Tag = "FANG"
	TagTemplateFail   Tag = "TemplateFail"
	TagInterviewStage Tag = "InterviewStage"
)

// TagSet is a small set of tags. The zero value is empty and usable.
type TagSet uint8

func (s TagSet) Has(t Tag) bool { return s&tagBit(t) != 0 }

func (s TagSet) With(t Tag) TagSet { return s | tagBit(t) }

// Tags lists the members in FANG, TemplateFail, InterviewStage order.
func (s TagSet) Tags() []Tag {
	var out []Tag
	for _, t := range []Tag{TagFANG, TagTemplateFail, TagInterviewStage} {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s TagSet) MarshalJSON() ([]byte, error) {
	tags := s.Tags()
	if tags == nil {
		tags = []Tag{}
	}
	return json.Marshal(tags)
}

func tagBit(t Tag) TagSet {
	switch t {
	case TagFANG:
		return 1
	case TagTemplateFail:
		return 2
	case TagInterviewStage:
		return 4
	}
	return 0
}

// ClassificationResult is the classifier's verdict for one message.
type ClassificationResult struct {
	IsRejection bool
	Tags        TagSet
}

// RejectionRecord is one message classified as a rejection.
type RejectionRecord struct {
	MonthKey  string // YYYY-MM
	Sender    string
	Snippet   string
	Tags      TagSet
	Timestamp time.Time
	Seq       int // dispatch order, used for deterministic tie-breaks
}

// NotableRejection is the display projection of a record.
type NotableRejection struct {
	Sender  string `json:"sender"`
	Snippet string `json:"snippet"`
}

type MonthCount struct {
	Month string
	Count int
}

// MonthlyCounts is kept sorted by month and encodes as a JSON object whose
// keys appear in that order.
type MonthlyCounts []MonthCount

// NewMonthlyCounts converts a month→count map into sorted form.
func NewMonthlyCounts(m map[string]int) MonthlyCounts {
	out := make(MonthlyCounts, 0, len(m))
	for k, v := range m {
		out = append(out, MonthCount{Month: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Total sums every month.
func (mc MonthlyCounts) Total() int {
	n := 0
	for _, c := range mc {
		n += c.Count
	}
	return n
}

// Get returns the count for month, or zero.
func (mc MonthlyCounts) Get(month string) int {
	for _, c := range mc {
		if c.Month == month {
			return c.Count
		}
	}
	return 0
}

func (mc MonthlyCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range mc {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Month)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(c.Count)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (mc *MonthlyCounts) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*mc = NewMonthlyCounts(m)
	return nil
}

// RejectionStats is the only value a scan hands back to its caller.
type RejectionStats struct {
	TotalRejections    int                `json:"total_rejections"`
	RejectionsPerMonth MonthlyCounts      `json:"rejections_per_month"`
	FANGRejectionCount int                `json:"fang_rejection_count"`
	NotableRejections  []NotableRejection `json:"notable_rejections"`
	UserProfile        UserProfile        `json:"user_profile"`
	ScanID             string             `json:"scan_id,omitempty"`
}
