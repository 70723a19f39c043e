package saver

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"inksync/internal/logger"
	"inksync/internal/store"
)

// Saver debounces document edits into durable writes. Each document keeps
// its own timer: an edit (re)arms it, and only the timer firing or an
// explicit flush touches the document store. Content identical to the last
// persisted bytes is never rewritten.
type Saver struct {
	mu    sync.Mutex
	docs  map[string]*docState
	delay time.Duration
	store store.DocumentStore

	// onDirty fires when a clean document becomes dirty, so the snapshot
	// timer can arm lazily. onError reports failed background flushes.
	onDirty func()
	onError func(path string, err error)
}

type docState struct {
	dirty       bool
	timer       *time.Timer
	pending     []byte
	seq         uint64
	fingerprint [sha256.Size]byte
	hasFinger   bool
}

func New(docStore store.DocumentStore, delay time.Duration) *Saver {
	return &Saver{
		docs:  make(map[string]*docState),
		delay: delay,
		store: docStore,
	}
}

func (s *Saver) OnDirty(fn func()) {
	s.onDirty = fn
}

func (s *Saver) OnError(fn func(path string, err error)) {
	s.onError = fn
}

// OnEdit records the latest content for the document and restarts its
// debounce timer.
func (s *Saver) OnEdit(path string, content []byte) {
	s.mu.Lock()

	st, ok := s.docs[path]
	if !ok {
		st = &docState{}
		s.docs[path] = st
	}

	wasClean := !st.dirty
	st.dirty = true
	st.seq++
	st.pending = append([]byte(nil), content...)

	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(s.delay, func() {
		if err := s.Flush(context.Background(), path); err != nil {
			logger.Log.Warn("debounced save failed",
				zap.String("path", path),
				zap.Error(err))

			if s.onError != nil {
				s.onError(path, err)
			}
		}
	})

	s.mu.Unlock()

	if wasClean && s.onDirty != nil {
		s.onDirty()
	}
}

// Flush writes the document now, cancelling its pending timer. A no-op for
// clean documents; a fingerprint match clears dirty without a write.
func (s *Saver) Flush(ctx context.Context, path string) error {
	s.mu.Lock()

	st, ok := s.docs[path]
	if !ok || !st.dirty {
		s.mu.Unlock()
		return nil
	}

	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}

	content := st.pending
	seq := st.seq
	sum := sha256.Sum256(content)

	if st.hasFinger && sum == st.fingerprint {
		st.dirty = false
		s.mu.Unlock()

		logger.Log.Debug("content unchanged, skipping write",
			zap.String("path", path))
		return nil
	}

	s.mu.Unlock()

	err := s.store.Write(ctx, path, content)

	s.mu.Lock()
	if err == nil {
		st.fingerprint = sum
		st.hasFinger = true
		// A newer edit may have arrived during the write; only then the
		// document stays dirty and its fresh timer keeps running.
		if st.seq == seq {
			st.dirty = false
			st.pending = nil
		}
	}
	s.mu.Unlock()

	return err
}

// FlushAll force-flushes every dirty document.
func (s *Saver) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	paths := make([]string, 0, len(s.docs))
	for path, st := range s.docs {
		if st.dirty {
			paths = append(paths, path)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, path := range paths {
		if err := s.Flush(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Saver) HasUnsaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.docs {
		if st.dirty {
			return true
		}
	}

	return false
}

// Forget drops all state for a document, e.g. after delete or rename.
func (s *Saver) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.docs[path]; ok && st.timer != nil {
		st.timer.Stop()
	}
	delete(s.docs, path)
}

// Stop cancels every pending timer without flushing.
func (s *Saver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.docs {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
}
