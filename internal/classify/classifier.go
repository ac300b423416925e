// Package classify decides whether a message body reads like a job
// application rejection and tags the notable ones.
package classify

import (
	"regexp"
	"strings"

	"rejectiondash/internal/model"
)

// RejectionKeywords trigger classification when any of them occurs in the
// body, ignoring case.
var RejectionKeywords = []string{
	"regret to inform", "unfortunately", "not proceed", "other candidates",
	"application will not be progressed", "decided to move forward with",
	"won't be moving forward", "thank you for your interest", "position has been filled",
	"not selected for this role", "unable to offer you a position",
	"appreciate you applying", "pursuing other applicants", "alternative candidates",
	"filled the position", "not moving forward", "selected another candidate",
	"different direction", "qualifications more closely match", "will not be extending an offer",
	"no longer considering your application", "after careful consideration",
	"highly competitive", "volume of applications", "wish you success",
	"best of luck", "encourage you to apply for future openings",

	// interview-stage phrasing
	"thank you for taking the time", "enjoyed our conversation",
	"following your interview", "after your recent interview", "interview process",
}

// InterviewKeywords mark a rejection that came after an interview.
var InterviewKeywords = []string{
	"thank you for taking the time to interview", "enjoyed our conversation about your experience",
	"following your interview", "after your recent interview", "interview process",
}

// fangNames match anywhere in the sender address.
var fangNames = []string{"google", "amazon", "apple", "meta", "facebook", "microsoft"}

var fangJobDomains = []string{"mail.amazon.jobs"}

// templatePlaceholder is matched against the body in its original case.
var templatePlaceholder = regexp.MustCompile(`\{[^}]*\}|<INSERT NAME[^>]*>|\[COMPANY NAME\]`)

// Classify reports whether body is a rejection and, if so, which tags
// apply. sender may be empty when the From header could not be read.
func Classify(body, sender string) model.ClassificationResult {
	if body == "" {
		return model.ClassificationResult{}
	}
	lower := strings.ToLower(body)
	if !containsAny(lower, RejectionKeywords) {
		return model.ClassificationResult{}
	}

	var tags model.TagSet
	if sender != "" && isFANG(sender) {
		tags = tags.With(model.TagFANG)
	}
	if templatePlaceholder.MatchString(body) {
		tags = tags.With(model.TagTemplateFail)
	}
	if containsAny(lower, InterviewKeywords) {
		tags = tags.With(model.TagInterviewStage)
	}
	return model.ClassificationResult{IsRejection: true, Tags: tags}
}

func isFANG(sender string) bool {
	s := strings.ToLower(sender)
	for _, name := range fangNames {
		if strings.Contains(s, name) || strings.Contains(s, name+".com") {
			return true
		}
	}
	for _, d := range fangJobDomains {
		if strings.Contains(s, d) {
			return true
		}
	}
	return false
}

// containsAny expects lowerText and every phrase to be lower case.
func containsAny(lowerText string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lowerText, p) {
			return true
		}
	}
	return false
}
