package localcache

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/onyx/internal/models"
)

// ErrWatchUnsupported is returned by Watch for stores not backed by files.
var ErrWatchUnsupported = errors.New("localcache: store does not support watching")

const watchDebounce = 100 * time.Millisecond

// Watch reports rewrites of the state blob made by other processes until ctx
// is cancelled. Writes made through this Cache are recognised by checksum and
// not reported.
func (c *Cache) Watch(ctx context.Context, fn func(*models.AppState)) error {
	p, ok := c.store.(pather)
	if !ok {
		return ErrWatchUnsupported
	}
	target, err := p.Path(StateKey)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: atomic renames replace the file's inode.
	dir := filepath.Dir(target)
	if err := w.Add(dir); err != nil {
		return err
	}
	c.logger.Info("cache: watcher started", slog.String("path", target))

	var debounce *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			c.logger.Info("cache: watcher stopped")
			return nil

		case <-fire:
			fire = nil
			c.reloadExternal(fn)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if isTemp(ev.Name) || filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			fire = debounce.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("cache: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (c *Cache) reloadExternal(fn func(*models.AppState)) {
	data, err := c.store.Get(StateKey)
	if err != nil {
		c.logger.Debug("cache: external read failed", slog.String("error", err.Error()))
		return
	}
	if c.seen(digest(data)) {
		return
	}
	s, err := decode(data)
	if err != nil {
		c.logger.Warn("cache: external blob corrupt", slog.String("error", err.Error()))
		return
	}
	c.logger.Debug("cache: external change")
	fn(s)
}
