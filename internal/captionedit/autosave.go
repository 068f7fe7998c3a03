package captionedit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultAutosaveDelay is how long a caption must stay unchanged before it
// is written.
const DefaultAutosaveDelay = 600 * time.Millisecond

// Autosaver debounces caption writes per image. Each Schedule replaces any
// pending write for the same image and restarts its idle timer.
//
// Writes for one image are serialized, and a write is dropped once a newer
// text has been scheduled for that image, so the latest edit always lands
// last.
type Autosaver struct {
	mu      sync.Mutex
	delay   time.Duration
	records CaptionUpdater
	onError func(projectID, imageID string, err error)
	pending map[saveKey]*pendingSave
	latest  map[saveKey]uint64
	writing map[saveKey]*keyLock
	seq     uint64
	stopped bool
}

type saveKey struct{ projectID, imageID string }

type pendingSave struct {
	text  string
	seq   uint64
	timer *time.Timer
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// AutosaveOption configures an Autosaver.
type AutosaveOption func(*Autosaver)

// WithDelay overrides DefaultAutosaveDelay.
func WithDelay(d time.Duration) AutosaveOption {
	return func(a *Autosaver) { a.delay = d }
}

// WithErrorHandler receives failures of timer-driven saves. Failures are
// logged either way.
func WithErrorHandler(fn func(projectID, imageID string, err error)) AutosaveOption {
	return func(a *Autosaver) { a.onError = fn }
}

// NewAutosaver returns an Autosaver writing through records.
func NewAutosaver(records CaptionUpdater, opts ...AutosaveOption) *Autosaver {
	a := &Autosaver{
		delay:   DefaultAutosaveDelay,
		records: records,
		pending: make(map[saveKey]*pendingSave),
		latest:  make(map[saveKey]uint64),
		writing: make(map[saveKey]*keyLock),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Schedule queues text as the caption of one image. It is ignored after Stop.
func (a *Autosaver) Schedule(projectID, imageID, text string) {
	k := saveKey{projectID, imageID}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if old, ok := a.pending[k]; ok {
		old.timer.Stop()
	}
	a.seq++
	p := &pendingSave{text: text, seq: a.seq}
	p.timer = time.AfterFunc(a.delay, func() { a.fire(k, p) })
	a.pending[k] = p
	a.latest[k] = p.seq
}

// Cancel drops the pending write for one image, including a write that is
// queued behind one already in flight. Used when the image is deleted.
func (a *Autosaver) Cancel(projectID, imageID string) {
	k := saveKey{projectID, imageID}

	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pending[k]; ok {
		p.timer.Stop()
		delete(a.pending, k)
	}
	delete(a.latest, k)
}

// fire writes p unless it has been superseded or flushed in the meantime.
func (a *Autosaver) fire(k saveKey, p *pendingSave) {
	a.mu.Lock()
	if a.pending[k] != p {
		a.mu.Unlock()
		return
	}
	delete(a.pending, k)
	a.mu.Unlock()

	written, err := a.write(context.Background(), k, p)
	if err != nil {
		a.report(k, err)
		return
	}
	if written {
		log.Debug().Str("imageId", k.imageID).Msg("Caption saved")
	}
}

// write persists p while holding the image's write lock. It reports false
// without writing when a newer text was scheduled or the save was cancelled.
func (a *Autosaver) write(ctx context.Context, k saveKey, p *pendingSave) (bool, error) {
	a.mu.Lock()
	l := a.writing[k]
	if l == nil {
		l = &keyLock{}
		a.writing[k] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		a.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(a.writing, k)
		}
		if a.latest[k] == p.seq && a.pending[k] == nil {
			delete(a.latest, k)
		}
		a.mu.Unlock()
	}()

	a.mu.Lock()
	current := a.latest[k] == p.seq
	a.mu.Unlock()
	if !current {
		return false, nil
	}
	if err := a.records.UpdateCaption(ctx, k.projectID, k.imageID, p.text); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Autosaver) report(k saveKey, err error) {
	log.Error().Err(err).
		Str("projectId", k.projectID).
		Str("imageId", k.imageID).
		Msg("Caption autosave failed")
	if a.onError != nil {
		a.onError(k.projectID, k.imageID, err)
	}
}

// Flush writes every pending caption now and returns the joined errors. It
// waits for any write of the same image that is already in flight.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[saveKey]*pendingSave)
	a.mu.Unlock()

	var errs []error
	for k, p := range batch {
		p.timer.Stop()
		if _, err := a.write(ctx, k, p); err != nil {
			a.report(k, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending returns the number of queued writes.
func (a *Autosaver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop cancels every pending write and rejects new ones.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for k, p := range a.pending {
		p.timer.Stop()
		delete(a.pending, k)
		delete(a.latest, k)
	}
}
