package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "steward.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return ts.UTC()
}

func TestTimeRoundTrip(t *testing.T) {
	in := mustTime(t, "2026-03-01T12:34:56Z").Add(789 * time.Millisecond)
	out, err := parseTime(formatTime(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip changed time: in %v out %v", in, out)
	}
	if formatTime(in) != "2026-03-01T12:34:56.789Z" {
		t.Errorf("unexpected format: %s", formatTime(in))
	}
}
