package service

import (
	"regexp"
	"strings"

	"github.com/omnibridge/backend/internal/models"
)

type command int

const (
	commandNone command = iota
	commandReset
	commandConfirm
)

var (
	resetPattern   = regexp.MustCompile(`(?i)\b(reset|start over|batal)\b`)
	resetOnly      = regexp.MustCompile(`(?i)^(reset|start over|batal)[.!\s]*$`)
	confirmPattern = regexp.MustCompile(`(?i)^(yes|y|ok|okay|submit|confirm|ya|iya|oke|kirim|setuju|lanjut)[.!\s]*$`)
	createPattern  = regexp.MustCompile(`(?is)^(?:please\s+)?(?:create|open|new|raise|buat)\s+(?:a\s+|new\s+)?(?:ticket|tiket)\b[\s,:.-]*(.*)$`)
	emailPattern   = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	keyPattern     = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)
)

// detectCommand is the deterministic layer in front of any AI call. Confirm
// words only count while a draft exists; without a draft a reset word must be
// the whole message, so "reset my password" still reaches the router.
func detectCommand(text string, hasDraft bool) command {
	text = strings.TrimSpace(text)
	if resetOnly.MatchString(text) || (hasDraft && resetPattern.MatchString(text)) {
		return commandReset
	}
	if hasDraft && confirmPattern.MatchString(text) {
		return commandConfirm
	}
	return commandNone
}

// parseEmail reports whether the whole message is an email address.
func parseEmail(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !emailPattern.MatchString(text) {
		return "", false
	}
	return strings.ToLower(text), true
}

// matchCreateTicket recognizes "create ticket, <problem>" and splits the
// problem into a summary and description.
func matchCreateTicket(text string) (models.DraftPatch, bool) {
	m := createPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return models.DraftPatch{}, false
	}
	rest := strings.TrimSpace(m[1])
	if rest == "" {
		return models.DraftPatch{}, true
	}
	return models.DraftPatch{Summary: summarize(rest), Description: rest}, true
}

// summarize takes the first sentence, cut to 80 characters on a word boundary.
func summarize(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.IndexAny(s, ".!?\n"); i > 0 {
		s = s[:i]
	}
	const max = 80
	r := []rune(s)
	if len(r) <= max {
		return strings.TrimSpace(s)
	}
	cut := string(r[:max])
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}

// findTicketKey matches keys as the tracker writes them (upper-case project
// prefix), so words like "covid-19" are not taken for keys.
func findTicketKey(text string) string {
	return keyPattern.FindString(text)
}
