package scan

import (
	"fmt"
	"strings"
)

// DefaultAfter is the earliest date searched when none is configured.
const DefaultAfter = "2024/01/01"

// QueryPhrases are the literal phrases the Gmail search ORs together.
var QueryPhrases = []string{
	"regret to inform", "unfortunately", "will not be proceeding",
	"move forward with other", "application will not be progressed",
	"thank you for your interest", "position has been filled",
	"not selected for this role", "unable to offer",
	"pursuing other applicants", "after careful consideration",
	"wish you success", "status of your application",
}

// SearchQuery is a Gmail search expression. It is built once and shared
// read-only by every scan.
type SearchQuery string

// BuildQuery renders `("p1" OR "p2" ...) after:YYYY/MM/DD`. Gmail treats the
// space between the two groups as AND.
func BuildQuery(after string) SearchQuery {
	if after == "" {
		after = DefaultAfter
	}
	quoted := make([]string, len(QueryPhrases))
	for i, p := range QueryPhrases {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return SearchQuery(fmt.Sprintf("(%s) after:%s", strings.Join(quoted, " OR "), after))
}

func (q SearchQuery) String() string { return string(q) }
