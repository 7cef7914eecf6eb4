package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oneIntervention = `interventions:
  - title: Stretch
    instructions: [Reach up]
    phase_tags: [luteal]
`

const twoInterventions = oneIntervention + `  - title: Walk
    instructions: [Step outside]
    phase_tags: [follicular]
`

func waitForUpdate(t *testing.T, w *Watcher) *Catalog {
	t.Helper()
	select {
	case c, ok := <-w.Updates():
		require.True(t, ok, "updates channel closed")
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no catalog update received")
		return nil
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(oneIntervention), 0o644))

	w, err := NewWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte(twoInterventions), 0o644))
	c := waitForUpdate(t, w)
	assert.Equal(t, []string{"Stretch", "Walk"}, c.Titles())
}

func TestWatcherIgnoresInvalidEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(oneIntervention), 0o644))

	w, err := NewWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// unrelated files in the same directory are not reported
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("interventions: [{title: Broken}]"), 0o644))
	time.Sleep(200 * time.Millisecond)
	select {
	case c := <-w.Updates():
		t.Fatalf("unexpected update with %d interventions", c.Len())
	default:
	}

	// replace by rename, as editors do
	tmp := filepath.Join(dir, ".catalog.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte(twoInterventions), 0o644))
	require.NoError(t, os.Rename(tmp, path))
	c := waitForUpdate(t, w)
	assert.Equal(t, 2, c.Len())
}

func TestWatcherStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(oneIntervention), 0o644))

	w, err := NewWatcher(path, 0)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_, ok := <-w.Updates()
	assert.False(t, ok)
}
