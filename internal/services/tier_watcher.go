package services

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codyseavey/poe2-price-checker/backend/internal/metrics"
)

const tierReloadDebounce = 250 * time.Millisecond

// TierCatalogWatcher reloads the tier catalog when its file changes on disk
type TierCatalogWatcher struct {
	evaluator *TierEvaluator
	path      string
	debounce  time.Duration
	onReload  func(err error)
}

func NewTierCatalogWatcher(evaluator *TierEvaluator, path string) *TierCatalogWatcher {
	return &TierCatalogWatcher{
		evaluator: evaluator,
		path:      filepath.Clean(path),
		debounce:  tierReloadDebounce,
	}
}

// Reload loads the catalog file into the evaluator
func (w *TierCatalogWatcher) Reload() error {
	if err := w.evaluator.LoadTierCatalogFile(w.path); err != nil {
		return err
	}
	if _, n, err := w.evaluator.CatalogInfo(); err == nil {
		metrics.TierCatalogModifiers.Set(float64(n))
	}
	return nil
}

// Watch blocks until ctx is done. The parent directory is watched so that
// editors that replace the file by renaming are picked up too.
func (w *TierCatalogWatcher) Watch(ctx context.Context) (err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch tier catalog directory: %w", err)
	}
	log.Printf("Tier watcher: watching %s", w.path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(w.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Tier watcher: file watcher error: %v", err)
		case <-pending:
			pending = nil
			reloadErr := w.Reload()
			if reloadErr != nil {
				log.Printf("Tier watcher: reload failed, keeping previous catalog: %v", reloadErr)
			} else {
				log.Printf("Tier watcher: reloaded %s", w.path)
			}
			if w.onReload != nil {
				w.onReload(reloadErr)
			}
		}
	}
}
