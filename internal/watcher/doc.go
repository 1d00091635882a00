// Package watcher keeps an inbox directory indexed.
//
// A HybridWatcher reports file changes under a directory, using fsnotify when
// the platform supports it and periodic scans otherwise (network mounts,
// some container volumes). Rapid changes to the same file are coalesced by a
// Debouncer before they are emitted as a batch.
//
// Inbox consumes those batches and hands every created or modified document
// that the loader can read to an Indexer:
//
//	w, err := watcher.NewHybridWatcher(watcher.Options{
//	    DebounceWindow: cfg.Server.WatchDebounce(),
//	    Filter:         loader.Supported,
//	})
//	if err != nil {
//	    return err
//	}
//	inbox := watcher.NewInbox(w, svc, loader.Supported)
//	return inbox.Run(ctx, cfg.Paths.UploadDir)
package watcher
