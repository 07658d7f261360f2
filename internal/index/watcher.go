package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/canvasfocus/internal/storage"
)

// Change kinds passed to EventCallback.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called for every relevant vault change. path is relative to
// the vault root with forward slashes.
type EventCallback func(kind string, path string)

// Watcher follows vault changes with fsnotify. Documents (.md and .canvas)
// are indexed unless Skip matches them; every document change, skipped or
// not, is reported through OnChange.
type Watcher struct {
	DB       *DB
	Store    storage.Provider
	Root     string
	Logger   *slog.Logger
	Skip     SkipFunc
	OnChange EventCallback
}

// Run processes events until ctx is cancelled. New folders are added to the
// watch list as they appear; hidden folders are not watched. Renames trigger
// a short debounced reconciliation pass.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirs(fw, w.Root); err != nil {
		return err
	}
	w.Logger.Info("watcher: started", slog.String("root", w.Root))

	var (
		reconcile   *time.Timer
		reconcileCh <-chan time.Time
	)
	scheduleReconcile := func() {
		if reconcile == nil {
			reconcile = time.NewTimer(reconcileDelay)
			reconcileCh = reconcile.C
			return
		}
		reconcile.Reset(reconcileDelay)
	}

	for {
		select {
		case <-ctx.Done():
			if reconcile != nil {
				reconcile.Stop()
			}
			w.Logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			w.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev, scheduleReconcile)

		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Error("watcher: error", slog.String("error", werr.Error()))
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event, scheduleReconcile func()) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if hidden(filepath.Base(ev.Name)) {
				return
			}
			if err := w.addDirs(fw, ev.Name); err != nil {
				w.Logger.Warn("watcher: add dir failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			w.indexDir(ev.Name)
			return
		}
	}

	rel, err := filepath.Rel(w.Root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if !storage.IsDocument(rel) {
		return
	}
	indexed := w.Skip == nil || !w.Skip(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		kind := KindUpdated
		if ev.Op&fsnotify.Create != 0 {
			kind = KindCreated
		}
		if indexed {
			data, err := w.Store.Read(rel)
			if err != nil {
				w.Logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
				return
			}
			if err := indexFile(w.DB, rel, data); err != nil {
				w.Logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
				return
			}
			w.Logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
		}
		w.notify(kind, rel)

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if indexed {
			if err := w.DB.DeleteNote(rel); err != nil {
				w.Logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			}
		}
		w.notify(KindDeleted, rel)
		if ev.Op&fsnotify.Rename != 0 {
			// fsnotify reports only the old name; the new one arrives as a
			// Create if it stays inside a watched folder.
			scheduleReconcile()
		}
	}
}

func (w *Watcher) notify(kind, rel string) {
	if w.OnChange != nil {
		w.OnChange(kind, rel)
	}
}

// reconcile removes index entries without a file on disk and indexes files
// the index does not know yet.
func (w *Watcher) reconcile() {
	checksums, err := w.DB.AllChecksums()
	if err != nil {
		w.Logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.Store.List("")
	if err != nil {
		w.Logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		if w.Skip != nil && w.Skip(m.Path) {
			continue
		}
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := w.DB.DeleteNote(p); err == nil {
			w.Logger.Debug("reconcile: removed stale", slog.String("path", p))
			w.notify(KindDeleted, p)
		}
	}
	for p, cs := range disk {
		if checksums[p] == cs {
			continue
		}
		data, err := w.Store.Read(p)
		if err != nil {
			continue
		}
		if err := indexFile(w.DB, p, data); err == nil {
			w.Logger.Debug("reconcile: indexed", slog.String("path", p))
			w.notify(KindCreated, p)
		}
	}
}

// indexDir indexes documents that already exist in a folder created at runtime.
func (w *Watcher) indexDir(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsDocument(p) {
			return nil
		}
		rel, err := filepath.Rel(w.Root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if w.Skip == nil || !w.Skip(rel) {
			data, err := w.Store.Read(rel)
			if err != nil {
				return nil
			}
			if err := indexFile(w.DB, rel, data); err != nil {
				return nil
			}
		}
		w.notify(KindCreated, rel)
		return nil
	})
}

func (w *Watcher) addDirs(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.Root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
