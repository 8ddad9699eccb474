package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/hive/pkg/models"
)

// FleetWatcher reloads the agent-fleet file when it changes on disk and hands
// the new fleet to a callback, so a running orchestrator can pick up fleet
// edits without a restart.
type FleetWatcher struct {
	path     string
	onChange func([]models.AgentConfig)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchFleet starts watching the fleet file. The callback runs on the
// watcher's goroutine after each successful reload; parse failures are logged
// and the previous fleet stays in effect.
func WatchFleet(path string, onChange func([]models.AgentConfig)) (*FleetWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory rather than the file itself: editors that
	// rename-on-save would otherwise detach the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	fw := &FleetWatcher{
		path:     path,
		onChange: onChange,
		watcher:  watcher,
		done:     make(chan struct{}),
	}
	go fw.loop()
	return fw, nil
}

func (fw *FleetWatcher) loop() {
	// Debounce bursts of write events from a single save.
	var pending <-chan time.Time

	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(fw.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(100 * time.Millisecond)
		case <-pending:
			pending = nil
			fleet, err := LoadFleet(fw.path)
			if err != nil {
				log.Printf("[config] fleet reload failed: %v", err)
				continue
			}
			log.Printf("[config] fleet reloaded from %s (%d agents)", fw.path, len(fleet))
			fw.onChange(fleet)
		case <-fw.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// Close stops the watcher.
func (fw *FleetWatcher) Close() {
	close(fw.done)
	fw.watcher.Close()
}
