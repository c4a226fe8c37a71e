package template

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// LoadAll loads each library path into the store. A library that fails to
// parse contributes zero tags and is reported; the remaining libraries
// still load.
func LoadAll(store *Store, paths []string) {
	for _, path := range paths {
		lib, err := LoadLibraryFile(path)
		if err != nil {
			log.Warn().Err(err).Str("library", path).Msg("template library load failed")
			continue
		}
		store.Update(lib)
	}
}

// Watch reloads library documents into the store when they change on disk.
// It blocks until ctx is cancelled. A reload failure keeps the previously
// loaded library.
func Watch(ctx context.Context, store *Store, paths []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(paths))
	for _, path := range paths {
		// watch the directory: editors commonly replace files on save,
		// which drops a watch held on the file itself
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			log.Warn().Err(err).Str("library", path).Msg("template library watch failed")
			continue
		}
		watched[filepath.Clean(path)] = true
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}

			lib, err := LoadLibraryFile(event.Name)
			if err != nil {
				log.Warn().Err(err).Str("library", event.Name).
					Msg("template library reload failed; keeping previous version")
				continue
			}
			store.Update(lib)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("template library watcher error")

		case <-ctx.Done():
			log.Info().Msg("template library watcher shutting down")
			return nil
		}
	}
}
