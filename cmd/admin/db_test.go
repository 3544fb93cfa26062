package main

import (
	"testing"

	"fieldnotes.ai/internal/observation"
)

func TestFilterRecords(t *testing.T) {
	recs := []observation.Record{
		{ID: 1, Author: "Ada"},
		{ID: 2, Author: "Bo"},
		{ID: 3, Author: "ada"},
		{ID: 4, Author: "Ada"},
	}
	got := filterRecords(recs, "ADA", 2)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Fatalf("got=%+v", got)
	}
	if got := filterRecords(recs, "", 0); len(got) != 4 {
		t.Fatalf("unfiltered len=%d", len(got))
	}
}
