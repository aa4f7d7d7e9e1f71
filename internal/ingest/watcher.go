package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/libriscan/libriscan/internal/entity"
)

// DefaultDebounce coalesces the write bursts of a scanner saving a file.
const DefaultDebounce = 2 * time.Second

type WatchConfig struct {
	Roots       []string // directories to watch (recursive)
	InitialScan bool     // if true, walk roots and emit existing files
	Debounce    time.Duration
	SkipHidden  bool
}

// StartWatcher emits the paths of page images created or rewritten under the
// roots. Both channels are closed when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("watcher start failed: no roots provided")
		return nil, nil, errors.New("no roots provided")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if cfg.SkipHidden && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && AllowedExt(filepath.Ext(path)) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}
	sort.Strings(initial)

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("failed to close watcher", "error", err)
			}
		}()

		emit := func(paths []string) bool {
			for _, p := range paths {
				select {
				case evCh <- p:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}
		if !emit(initial) {
			return
		}

		timer := time.NewTimer(cfg.Debounce)
		timer.Stop()
		pending := map[string]struct{}{}

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
						if err := w.Add(e.Name); err != nil {
							logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
						}
						continue
					}
				}
				if cfg.SkipHidden && IsHidden(e.Name) {
					continue
				}
				if AllowedExt(filepath.Ext(e.Name)) && (e.Has(fsnotify.Create) || e.Has(fsnotify.Write) || e.Has(fsnotify.Rename)) {
					pending[e.Name] = struct{}{}
					timer.Reset(cfg.Debounce)
				}
			case <-timer.C:
				paths := make([]string, 0, len(pending))
				for p := range pending {
					if _, err := os.Stat(p); err == nil {
						paths = append(paths, p)
					}
					delete(pending, p)
				}
				sort.Strings(paths)
				if !emit(paths) {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// Watch imports every image under dir, then keeps importing images as they
// appear until ctx is done. onResult sees each outcome, failures included.
func (i *Importer) Watch(ctx context.Context, doc *entity.Document, dir string, debounce time.Duration, onResult func(Result)) error {
	paths, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{dir},
		InitialScan: true,
		Debounce:    debounce,
		SkipHidden:  true,
	}, i.logger)
	if err != nil {
		return err
	}
	i.logger.Info("watching for page images", "dir", dir, "document_id", doc.ID)
	for {
		select {
		case p, ok := <-paths:
			if !ok {
				return ctx.Err()
			}
			r, err := i.ImportPath(ctx, doc, p)
			if err != nil {
				i.logger.Warn("page import failed", "path", p, "err", err)
				r.Err = err.Error()
			}
			if onResult != nil {
				onResult(r)
			}
		case err, ok := <-errs:
			if ok {
				i.logger.Warn("watch error", "err", err)
			} else {
				errs = nil
			}
		}
	}
}
