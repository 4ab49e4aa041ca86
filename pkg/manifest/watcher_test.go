package manifest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestWatch_FiresAfterChange(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "platform.yaml", "resources: []\n")

	fired := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, 10*time.Millisecond, nil, func(context.Context) {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before touching the file.
	time.Sleep(100 * time.Millisecond)
	writeManifest(t, dir, "platform.yaml", "resources: []\n# touched\n")

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the callback to fire after a change")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestWatch_MissingPath(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent"), 0, nil, func(context.Context) {})
	if err == nil {
		t.Fatal("Expected an error for a missing path")
	}
}

func TestRelevantEvent(t *testing.T) {
	cases := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"yaml write", fsnotify.Event{Name: "a.yaml", Op: fsnotify.Write}, true},
		{"yml create", fsnotify.Event{Name: "a.yml", Op: fsnotify.Create}, true},
		{"yaml remove", fsnotify.Event{Name: "a.yaml", Op: fsnotify.Remove}, true},
		{"chmod ignored", fsnotify.Event{Name: "a.yaml", Op: fsnotify.Chmod}, false},
		{"other extension", fsnotify.Event{Name: "a.txt", Op: fsnotify.Write}, false},
	}
	for _, tc := range cases {
		if got := relevantEvent(tc.ev); got != tc.want {
			t.Errorf("Expected %v for %s, got %v", tc.want, tc.name, got)
		}
	}
}
