package filesystem_test

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/fixturemock/internal/testutil"
)

// changeLog collects every batch the watcher reports.
type changeLog struct {
	mu      sync.Mutex
	batches [][]string
}

func (l *changeLog) record(changed []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, changed)
}

func (l *changeLog) Load() int32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int32(len(l.batches))
}

func (l *changeLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var all []string
	for _, b := range l.batches {
		all = append(all, b...)
	}
	return all
}

func startWatcher(t *testing.T, dir string, debounce time.Duration) *changeLog {
	t.Helper()
	log := &changeLog{}
	w, err := filesystem.NewWatcher(dir, debounce, &testutil.NoopLogger{}, log.record)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	t.Cleanup(w.Stop)
	w.Start()
	return log
}

func TestWatcher_DetectsFixtureCreate(t *testing.T) {
	dir := t.TempDir()
	count := startWatcher(t, dir, 100*time.Millisecond)

	writeFile(t, filepath.Join(dir, "new.json"), minimalFixture)
	time.Sleep(500 * time.Millisecond)

	if count.Load() < 1 {
		t.Error("expected at least one change notification")
	}
}

func TestWatcher_DetectsFixtureModifyInSubdirectory(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "sub", "existing.yaml")
	writeFile(t, f, "responses: []\n")
	count := startWatcher(t, dir, 100*time.Millisecond)

	if err := os.WriteFile(f, []byte("responses: [1]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)

	if count.Load() < 1 {
		t.Fatal("expected a notification for a modified fixture")
	}
	if names := count.names(); !slices.Contains(names, "sub/existing.yaml") {
		t.Errorf("expected sub/existing.yaml among changed fixtures, got %v", names)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	count := startWatcher(t, dir, 100*time.Millisecond)

	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")
	writeFile(t, filepath.Join(dir, ".swap.json"), "{}")
	writeFile(t, filepath.Join(dir, "fixture.json~"), "{}")
	time.Sleep(500 * time.Millisecond)

	if count.Load() != 0 {
		t.Errorf("expected no notifications, got %d", count.Load())
	}
}

func TestWatcher_Debounce(t *testing.T) {
	dir := t.TempDir()
	count := startWatcher(t, dir, 200*time.Millisecond)

	for i := range 5 {
		writeFile(t, filepath.Join(dir, "burst.json"), `{"n": `+string(rune('0'+i))+`}`)
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if n := count.Load(); n < 1 || n > 2 {
		t.Errorf("expected 1-2 notifications (debounced), got %d", n)
	}
}

func TestWatcher_BatchesNamesSortedAndUnique(t *testing.T) {
	dir := t.TempDir()
	log := startWatcher(t, dir, 300*time.Millisecond)

	writeFile(t, filepath.Join(dir, "b.json"), minimalFixture)
	writeFile(t, filepath.Join(dir, "a.json"), minimalFixture)
	writeFile(t, filepath.Join(dir, "b.json"), minimalFixture)
	time.Sleep(800 * time.Millisecond)

	if log.Load() == 0 {
		t.Fatal("expected a change batch")
	}
	log.mu.Lock()
	first := slices.Clone(log.batches[0])
	log.mu.Unlock()
	if !slices.IsSorted(first) {
		t.Errorf("batch not sorted: %v", first)
	}
	if len(slices.Compact(slices.Clone(first))) != len(first) {
		t.Errorf("batch has duplicates: %v", first)
	}
	all := log.names()
	for _, want := range []string{"a.json", "b.json"} {
		if !slices.Contains(all, want) {
			t.Errorf("expected %s in %v", want, all)
		}
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := filesystem.NewWatcher(t.TempDir(), time.Millisecond, &testutil.NoopLogger{}, func([]string) {})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.Start()
	w.Stop()
	w.Stop()
}
