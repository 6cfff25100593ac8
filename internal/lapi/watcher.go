package lapi

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
)

// Watcher reloads the credentials file when it changes on disk and swaps
// the new credentials into the client, invalidating its token. Operators
// rotate machine passwords by rewriting that file; without the watcher a
// rotation would strand the UI on a dead token until restart.
type Watcher struct {
	path    string
	client  *Client
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchCredentials starts watching path. The parent directory is watched
// rather than the file itself so atomic rename-style rewrites are seen.
func WatchCredentials(path string, client *Client) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create credentials watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch credentials dir: %w", err)
	}

	w := &Watcher{
		path:    filepath.Clean(path),
		client:  client,
		watcher: fsw,
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			creds, err := LoadCredentialsFile(w.path)
			if err != nil {
				logger.WithFields(map[string]interface{}{"path": w.path, "error": err.Error()}).Warn("credentials file changed but could not be reloaded")
				continue
			}
			w.client.SetCredentials(creds)
			logger.WithFields(map[string]interface{}{"path": w.path, "login": creds.Login}).Info("reloaded lapi credentials from disk")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("credentials watcher error")
		}
	}
}

// Close stops watching and waits for the watch loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
