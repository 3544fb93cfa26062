package observation

import (
	"testing"
	"time"

	"fieldnotes.ai/internal/markup"
)

func TestRenderer_Lines(t *testing.T) {
	r := NewRenderer(&fakeHost{}, RendererConfig{TimeZone: time.UTC, DateLayout: "2006-01-02"})
	created := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	o := newObservation(1, created, "Ada", srcAt(0, 0, 0, Vec3{}), "&cRed fox", nil)

	lines := r.Lines(o)
	if len(lines) != 3 {
		t.Fatalf("lines=%d", len(lines))
	}
	if lines[0].Kind != LineItem || lines[0].Item != DefaultIconItem {
		t.Fatalf("icon line=%+v", lines[0])
	}
	if lines[1].Text != "§cRed fox" {
		t.Fatalf("text line=%q", lines[1].Text)
	}
	if markup.Strip(lines[2].Text) != "Ada - 2024-03-04" {
		t.Fatalf("byline=%q", lines[2].Text)
	}

	exp := created.Add(48 * time.Hour)
	o.expiresAt = &exp
	lines = r.Lines(o)
	if len(lines) != 4 || markup.Strip(lines[3].Text) != "Expires 2024-03-06" {
		t.Fatalf("expiry line=%+v", lines)
	}
}

func TestRenderer_DestroyNilSafe(t *testing.T) {
	r := NewRenderer(&fakeHost{}, RendererConfig{})
	r.Destroy(nil)
	m := &fakeMarker{}
	r.Destroy(m)
	r.Destroy(m)
	if m.destroyed != 2 {
		t.Fatalf("destroy passes through to the idempotent handle, got %d", m.destroyed)
	}
}

func TestTeleporter_NilActor(t *testing.T) {
	NewTeleporter(Location{}).Touch(nil)
}
