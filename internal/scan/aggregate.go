package scan

import (
	"sort"

	"rejectiondash/internal/model"
)

// MaxNotable is the most notable rejections a result carries.
const MaxNotable = 5

// Aggregate folds records into the final stats. Counts do not depend on
// record order. Notable records are ranked FANG, then InterviewStage, then
// TemplateFail, then the rest; records of equal rank keep their input order.
func Aggregate(records []model.RejectionRecord, profile model.UserProfile, notableLimit int) model.RejectionStats {
	if notableLimit < 1 || notableLimit > MaxNotable {
		notableLimit = MaxNotable
	}

	perMonth := make(map[string]int)
	fang := 0
	for _, r := range records {
		perMonth[r.MonthKey]++
		if r.Tags.Has(model.TagFANG) {
			fang++
		}
	}

	ranked := make([]model.RejectionRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return priority(ranked[i].Tags) < priority(ranked[j].Tags)
	})
	if len(ranked) > notableLimit {
		ranked = ranked[:notableLimit]
	}
	notable := make([]model.NotableRejection, 0, len(ranked))
	for _, r := range ranked {
		notable = append(notable, model.NotableRejection{Sender: r.Sender, Snippet: r.Snippet})
	}

	return model.RejectionStats{
		TotalRejections:    len(records),
		RejectionsPerMonth: model.NewMonthlyCounts(perMonth),
		FANGRejectionCount: fang,
		NotableRejections:  notable,
		UserProfile:        profile,
	}
}

func priority(tags model.TagSet) int {
	switch {
	case tags.Has(model.TagFANG):
		return 0
	case tags.Has(model.TagInterviewStage):
		return 1
	case tags.Has(model.TagTemplateFail):
		return 2
	}
	return 3
}
