package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/fsnotify/fsnotify"
)

// Handler processes one settled group of files
type Handler func(ctx context.Context, files []string) error

// Watcher collects new files of the inbox dir into groups.
// A group is closed when no new event arrives for the settle duration,
// groups are handed to the handler one at a time.
type Watcher struct {
	dir     string
	settle  time.Duration
	handler Handler
	accept  func(string) bool

	fw     *fsnotify.Watcher
	groups chan []string
}

// New creates watcher for dir
func New(dir string, settle time.Duration, handler Handler) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("no handler")
	}
	if settle <= 0 {
		return nil, fmt.Errorf("wrong settle duration %v", settle)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("can't create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("can't watch '%s': %w", dir, err)
	}
	return &Watcher{dir: dir, settle: settle, handler: handler, accept: visible, fw: fw,
		groups: make(chan []string, 100)}, nil
}

// Start monitors the dir until ctx is done, waits for the running group to finish
func (w *Watcher) Start(ctx context.Context) error {
	goapp.Log.Info().Str("dir", w.dir).Dur("settle", w.settle).Msg("watching")
	workDone := make(chan struct{})
	go w.work(ctx, workDone)
	defer func() {
		close(w.groups)
		<-workDone
		goapp.Log.Info().Msg("watcher stopped")
	}()

	var pending []string
	inPending := map[string]bool{}
	var settled <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !w.accept(ev.Name) {
				continue
			}
			if !inPending[ev.Name] {
				goapp.Log.Debug().Str("file", ev.Name).Msg("new file")
				inPending[ev.Name] = true
				pending = append(pending, ev.Name)
			}
			settled = time.After(w.settle)
		case <-settled:
			settled = nil
			group := existing(pending)
			pending, inPending = nil, map[string]bool{}
			if len(group) == 0 {
				continue
			}
			goapp.Log.Info().Int("files", len(group)).Msg("group settled")
			select {
			case w.groups <- group:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			goapp.Log.Error().Err(err).Msg("watcher error")
		}
	}
}

// Stop closes the file watcher
func (w *Watcher) Stop() error {
	return w.fw.Close()
}

func (w *Watcher) work(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for g := range w.groups {
		if ctx.Err() != nil {
			goapp.Log.Warn().Int("files", len(g)).Msg("skip group, stopping")
			continue
		}
		if err := w.handler(ctx, g); err != nil {
			goapp.Log.Error().Err(err).Int("files", len(g)).Msg("group failed")
		}
	}
}

func existing(files []string) []string {
	var res []string
	for _, f := range files {
		if st, err := os.Stat(f); err == nil && st.Mode().IsRegular() {
			res = append(res, f)
		}
	}
	return res
}

func visible(name string) bool {
	return !strings.HasPrefix(filepath.Base(name), ".")
}
