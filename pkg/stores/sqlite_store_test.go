package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func translation(id, source string, status Status, started time.Time) *Translation {
	return &Translation{
		ID:           id,
		SourcePath:   source,
		SourceSHA256: Digest("source " + id),
		Status:       status,
		StartedAt:    started,
		Duration:     25 * time.Millisecond,
	}
}

func TestSQLiteStore_RecordAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	want := translation("run-1", "site.hap", StatusSuccess, started)
	want.OutputSHA256 = Digest("backend app\n")
	want.OutputPath = "/etc/haproxy/haproxy.cfg"
	want.WarningCount = 2

	if err := store.Record(ctx, want); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_RecordDuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tr := translation("run-1", "a.hap", StatusSuccess, time.Now().UTC())
	if err := store.Record(ctx, tr); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(ctx, tr); err == nil {
		t.Error("Record() with duplicate id should fail")
	}
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		tr := translation(id, "site.hap", StatusSuccess, base.Add(time.Duration(i)*time.Minute))
		if err := store.Record(ctx, tr); err != nil {
			t.Fatalf("Record(%s) error = %v", id, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "limited", limit: 2, want: []string{"d", "c"}},
		{name: "all", limit: 0, want: []string{"d", "c", "b", "a"}},
		{name: "over", limit: 10, want: []string{"d", "c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := store.List(ctx, tt.limit)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			var got []string
			for _, r := range rows {
				got = append(got, r.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("List() ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSQLiteStore_LastSuccessful(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []*Translation{
		translation("ok-1", "site.hap", StatusSuccess, base),
		translation("ok-2", "site.hap", StatusSuccess, base.Add(time.Minute)),
		translation("fail", "site.hap", StatusFailure, base.Add(2*time.Minute)),
		translation("other", "other.hap", StatusSuccess, base.Add(3*time.Minute)),
	}
	for _, r := range rows {
		if err := store.Record(ctx, r); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := store.LastSuccessful(ctx, "site.hap")
	if err != nil {
		t.Fatalf("LastSuccessful() error = %v", err)
	}
	if got.ID != "ok-2" {
		t.Errorf("LastSuccessful() = %s, want ok-2", got.ID)
	}

	if _, err := store.LastSuccessful(ctx, "never.hap"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LastSuccessful(never) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_Prune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.Record(ctx, translation(id, "x.hap", StatusFailure, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("Prune() removed = %d, want 2", removed)
	}
	left, err := store.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].ID != "c" {
		t.Errorf("remaining rows = %v, want [c]", left)
	}
}

func TestSQLiteStore_HealthCheck(t *testing.T) {
	store := setupTestStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	uninit, err := NewSQLiteStore(Config{Path: "unused.db"})
	if err != nil {
		t.Fatal(err)
	}
	if err := uninit.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on uninitialized store should fail")
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("NewSQLiteStore() without path should fail")
	}
}
