package app

import "crossmod/internal/core/watcher"

// StartWatcher feeds file changes below the project roots into the workspace
// and requests a cycle for every project that got new work.
func (w *Workspace) StartWatcher(coord *Coordinator) (*watcher.Watcher, error) {
	fw, err := watcher.NewWatcher(
		w.Config().Watch.Debounce,
		w.filter,
		func(paths []string) {
			if affected := w.HandleChanges(paths); len(affected) > 0 {
				coord.Submit(affected...)
			}
		},
	)
	if err != nil {
		return nil, err
	}
	if err := fw.Watch(w.WatchRoots()); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return fw, nil
}
