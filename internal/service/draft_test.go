package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omnibridge/backend/internal/models"
)

func TestNormalizePriority(t *testing.T) {
	cases := map[string]string{
		"urgent": "P1",
		"HIGH":   "P2",
		" p3 ":   "P3",
		"Low":    "P4",
		"P1":     "P1",
	}
	for in, want := range cases {
		got, ok := normalizePriority(in)
		if !ok || got != want {
			t.Fatalf("normalizePriority(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := normalizePriority("P5"); ok {
		t.Fatalf("expected P5 to be rejected")
	}
}

func TestNormalizeDate(t *testing.T) {
	for in, want := range map[string]string{
		"2026-03-01": "2026-03-01",
		"01/03/2026": "2026-03-01",
		"1/3/2026":   "2026-03-01",
	} {
		got, ok := normalizeDate(in)
		if !ok || got != want {
			t.Fatalf("normalizeDate(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	for _, bad := range []string{"tomorrow", "2026-13-01", "31/02/2026", ""} {
		if _, ok := normalizeDate(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestUpdateDraft_MergeIsPerField(t *testing.T) {
	a := &models.Session{}
	UpdateDraft(a, models.DraftPatch{Summary: "A"}, testNow)
	UpdateDraft(a, models.DraftPatch{Priority: "P1"}, testNow)

	b := &models.Session{}
	UpdateDraft(b, models.DraftPatch{Priority: "P1"}, testNow)
	UpdateDraft(b, models.DraftPatch{Summary: "A"}, testNow)

	assert.Equal(t, a.Draft.Summary, b.Draft.Summary)
	assert.Equal(t, a.Draft.Priority, b.Draft.Priority)
	assert.Equal(t, models.DraftCollecting, a.Draft.Status)
	assert.Equal(t, models.DraftCollecting, b.Draft.Status)
}

func TestUpdateDraft_EmptyValuesAreNoops(t *testing.T) {
	s := &models.Session{}
	UpdateDraft(s, models.DraftPatch{Summary: "Printer jam", Description: "Tray 2"}, testNow)
	reply := UpdateDraft(s, models.DraftPatch{Summary: "", Priority: "whatever"}, testNow)

	assert.Equal(t, "Printer jam", s.Draft.Value(models.FieldSummary))
	assert.Equal(t, "", s.Draft.Value(models.FieldPriority))
	assert.Equal(t, promptFor(models.FieldPriority), reply)
}

func TestUpdateDraft_PreviewOnlyWhenComplete(t *testing.T) {
	s := &models.Session{}
	steps := []models.DraftPatch{
		{Summary: "Printer jam"},
		{Description: "Tray 2 jams on every job"},
		{Priority: "medium"},
	}
	wantPrompts := []models.DraftField{models.FieldDescription, models.FieldPriority, models.FieldStartDate}
	for i, p := range steps {
		reply := UpdateDraft(s, p, testNow)
		assert.Equal(t, promptFor(wantPrompts[i]), reply)
		assert.Equal(t, models.DraftCollecting, s.Draft.Status)
	}

	reply := UpdateDraft(s, models.DraftPatch{StartDate: "05/04/2026"}, testNow)
	assert.Equal(t, models.DraftPreview, s.Draft.Status)
	assert.Equal(t, "Here is your ticket draft:\n"+
		"Summary: Printer jam\n"+
		"Description: Tray 2 jams on every job\n"+
		"Priority: P3\n"+
		"Start date: 2026-04-05\n"+
		`Reply "yes" to submit it or "reset" to discard it.`, reply)
	assert.Equal(t, testNow, s.Draft.LastUpdate)
}

func TestWithDefaultsDoesNotOverride(t *testing.T) {
	p, d := "P1", "2026-05-01"
	got := withDefaults(models.DraftTicket{Priority: &p, StartDate: &d}, testNow)
	assert.Equal(t, "P1", got.Value(models.FieldPriority))
	assert.Equal(t, "2026-05-01", got.Value(models.FieldStartDate))

	got = withDefaults(models.DraftTicket{}, testNow)
	assert.Equal(t, "P3", got.Value(models.FieldPriority))
	assert.Equal(t, "2026-02-20", got.Value(models.FieldStartDate))
}
