package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/omnibridge/backend/internal/models"
)

const (
	defaultPriority = "P3"
	isoDate         = "2006-01-02"
)

var priorityAliases = map[string]string{
	"P1":       "P1",
	"P2":       "P2",
	"P3":       "P3",
	"P4":       "P4",
	"URGENT":   "P1",
	"CRITICAL": "P1",
	"HIGH":     "P2",
	"MEDIUM":   "P3",
	"NORMAL":   "P3",
	"LOW":      "P4",
}

var (
	priorityMention = regexp.MustCompile(`(?i)\bpriority\s*(?:is|to|:|=)?\s*([a-z0-9]+)|\b(p[1-4])\b`)
	dateMention     = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})\b`)
)

func normalizePriority(v string) (string, bool) {
	p, ok := priorityAliases[strings.ToUpper(strings.TrimSpace(v))]
	return p, ok
}

// normalizeDate accepts YYYY-MM-DD and DD/MM/YYYY and returns YYYY-MM-DD.
func normalizeDate(v string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{isoDate, "02/01/2006", "2/1/2006"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(isoDate), true
		}
	}
	return "", false
}

// applyPatch merges non-empty, valid patch values into d. Values that fail
// normalization are dropped. It reports whether any field changed.
func applyPatch(d *models.DraftTicket, p models.DraftPatch) bool {
	changed := false
	set := func(dst **string, v string) {
		if v == "" {
			return
		}
		if *dst != nil && **dst == v {
			return
		}
		val := v
		*dst = &val
		changed = true
	}
	set(&d.Summary, strings.TrimSpace(p.Summary))
	set(&d.Description, strings.TrimSpace(p.Description))
	if p.Priority != "" {
		if v, ok := normalizePriority(p.Priority); ok {
			set(&d.Priority, v)
		}
	}
	if p.StartDate != "" {
		if v, ok := normalizeDate(p.StartDate); ok {
			set(&d.StartDate, v)
		}
	}
	return changed
}

// UpdateDraft merges patch into the session's draft, starting one if needed,
// and returns either the preview or the prompt for the first missing field.
func UpdateDraft(s *models.Session, patch models.DraftPatch, now time.Time) string {
	if s.Draft == nil {
		s.Draft = &models.DraftTicket{Status: models.DraftCollecting}
	}
	applyPatch(s.Draft, patch)
	s.Draft.LastUpdate = now

	missing := s.Draft.Missing()
	if len(missing) == 0 {
		s.Draft.Status = models.DraftPreview
		return formatPreview(*s.Draft)
	}
	s.Draft.Status = models.DraftCollecting
	return promptFor(missing[0])
}

// withDefaults fills priority and start date the way confirmation does.
func withDefaults(d models.DraftTicket, now time.Time) models.DraftTicket {
	if d.Value(models.FieldPriority) == "" {
		p := defaultPriority
		d.Priority = &p
	}
	if d.Value(models.FieldStartDate) == "" {
		today := now.Format(isoDate)
		d.StartDate = &today
	}
	return d
}

// answerField turns a reply to a field prompt into a patch. ok is false when
// the text is not a valid value for that field.
func answerField(f models.DraftField, text string) (models.DraftPatch, bool) {
	text = strings.TrimSpace(text)
	switch f {
	case models.FieldSummary:
		return models.DraftPatch{Summary: summarize(text)}, text != ""
	case models.FieldDescription:
		return models.DraftPatch{Description: text}, text != ""
	case models.FieldPriority:
		p, ok := normalizePriority(text)
		return models.DraftPatch{Priority: p}, ok
	case models.FieldStartDate:
		d, ok := normalizeDate(text)
		return models.DraftPatch{StartDate: d}, ok
	}
	return models.DraftPatch{}, false
}

// extractFields picks priority and start-date values out of free text, so
// "P1, start 2026-03-01" fills both fields in one reply.
func extractFields(text string) models.DraftPatch {
	var p models.DraftPatch
	for _, m := range priorityMention.FindAllStringSubmatch(text, -1) {
		v := m[1]
		if v == "" {
			v = m[2]
		}
		if n, ok := normalizePriority(v); ok {
			p.Priority = n
			break
		}
	}
	for _, m := range dateMention.FindAllStringSubmatch(text, -1) {
		if d, ok := normalizeDate(m[1]); ok {
			p.StartDate = d
			break
		}
	}
	return p
}

// structuredField reports fields whose prompt answers have a fixed format.
func structuredField(f models.DraftField) bool {
	return f == models.FieldPriority || f == models.FieldStartDate
}

func promptFor(f models.DraftField) string {
	switch f {
	case models.FieldSummary:
		return "What's a short summary of the problem?"
	case models.FieldDescription:
		return "Please describe the problem in a bit more detail."
	case models.FieldPriority:
		return "What priority is this? Reply P1 (urgent), P2 (high), P3 (medium) or P4 (low)."
	default:
		return "When should work start? Reply with a date (YYYY-MM-DD or DD/MM/YYYY)."
	}
}

func invalidAnswer(f models.DraftField) string {
	if f == models.FieldPriority {
		return ReplyInvalidPriority
	}
	return ReplyInvalidDate
}

func formatPreview(d models.DraftTicket) string {
	var b strings.Builder
	b.WriteString("Here is your ticket draft:\n")
	fmt.Fprintf(&b, "Summary: %s\n", d.Value(models.FieldSummary))
	fmt.Fprintf(&b, "Description: %s\n", d.Value(models.FieldDescription))
	fmt.Fprintf(&b, "Priority: %s\n", d.Value(models.FieldPriority))
	fmt.Fprintf(&b, "Start date: %s\n", d.Value(models.FieldStartDate))
	b.WriteString(`Reply "yes" to submit it or "reset" to discard it.`)
	return b.String()
}
