// Package watch reports file changes under asset roots.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("watch: service closed")

// ChangeKind classifies a file-system notification.
type ChangeKind uint8

const (
	ChangeModified ChangeKind = iota + 1
	ChangeCreated
	ChangeRemoved
	ChangeRenamed
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeModified:
		return "modified"
	case ChangeCreated:
		return "created"
	case ChangeRemoved:
		return "removed"
	case ChangeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// OnChange receives the absolute path of a changed file. It runs on the watcher goroutine.
type OnChange func(path string, kind ChangeKind)

type watchedRoot struct {
	root     string
	onChange OnChange
}

// service is the implementation of the Service interface.
type service struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	roots   []watchedRoot
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup

	logger *slog.Logger
}

// Service watches directory trees and forwards changes to per-root callbacks.
type Service interface {
	// Watch registers every directory under root and calls onChange for changes to files in
	// that tree. Directories created later are picked up automatically.
	//
	// Parameters:
	//   - root: the directory to watch
	//   - onChange: the callback for this root
	//
	// Returns:
	//   - error: error if the tree cannot be walked or registered
	Watch(root string, onChange OnChange) error

	// Close stops the watcher goroutine and releases the OS watcher.
	//
	// Returns:
	//   - error: error from closing the OS watcher
	Close() error
}

var _ Service = &service{}

// NewService creates a Service backed by fsnotify and starts its event goroutine.
//
// Parameters:
//   - options: functional options to configure the service
//
// Returns:
//   - Service: the running service
//   - error: error if the OS watcher cannot be created
func NewService(options ...ServiceBuilderOption) (Service, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: failed to create watcher: %w", err)
	}

	s := &service{
		watcher: w,
		done:    make(chan struct{}),
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(s)
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *service) Watch(root string, onChange OnChange) error {
	if onChange == nil {
		return errors.New("watch: nil callback")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.addTree(abs); err != nil {
		return err
	}
	s.roots = append(s.roots, watchedRoot{root: abs, onChange: onChange})
	s.logger.Debug("watching asset root", "root", abs)
	return nil
}

// addTree registers abs and every directory below it. Caller holds mu.
func (s *service) addTree(abs string) error {
	return filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := s.watcher.Add(path); err != nil {
			return fmt.Errorf("watch: failed to add %s: %w", path, err)
		}
		return nil
	})
}

func (s *service) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("file watcher error", "error", err)
		}
	}
}

func (s *service) handle(ev fsnotify.Event) {
	var kind ChangeKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = ChangeCreated
	case ev.Has(fsnotify.Write):
		kind = ChangeModified
	case ev.Has(fsnotify.Remove):
		kind = ChangeRemoved
	case ev.Has(fsnotify.Rename):
		kind = ChangeRenamed
	default:
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if kind == ChangeCreated {
		if err := s.addTree(ev.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
		}
	}
	target := s.match(ev.Name)
	s.mu.Unlock()

	if target != nil {
		target(ev.Name, kind)
	}
}

// match returns the callback of the deepest root containing path. Caller holds mu.
func (s *service) match(path string) OnChange {
	var best OnChange
	bestLen := -1
	for _, r := range s.roots {
		if path != r.root && !strings.HasPrefix(path, r.root+string(filepath.Separator)) {
			continue
		}
		if len(r.root) > bestLen {
			best, bestLen = r.onChange, len(r.root)
		}
	}
	return best
}

func (s *service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	err := s.watcher.Close()
	s.wg.Wait()
	return err
}
