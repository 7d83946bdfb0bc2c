// Package chat watches the configuration file and re-applies it on
// change, so operational settings adjust without a restart.
package chat

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig reloads the configuration file whenever it is rewritten
// and applies it with SetConfig. The parent directory is watched, not
// the file itself, so editors that replace the file are still seen.
// Reloads affect connections accepted after the change; the listen
// addresses are fixed at startup. The returned stop function ends the
// watch.
func WatchConfig(path string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadConfigFile(path)
				if err != nil {
					log.Printf("config reload failed: %v", err)
					continue
				}
				SetConfig(cfg)
				log.Printf("configuration reloaded from %s", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config watcher error: %v", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
