package images

import (
	"sync"

	"github.com/hatlen/tiv/tiv"
)

// errorLedger remembers the last load failure per file. An entry is sticky:
// it survives repeated lookups and is removed only by a later successful
// load of the same file or by a wholesale clear.
type errorLedger struct {
	mu     sync.Mutex
	errors map[uint64]ledgerEntry
}

type ledgerEntry struct {
	path string
	err  error
}

func newErrorLedger() *errorLedger {
	return &errorLedger{
		errors: make(map[uint64]ledgerEntry),
	}
}

func (l *errorLedger) set(id tiv.FileID, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Never replace another path's entry on a hash collision.
	if e, ok := l.errors[id.Hash()]; ok && e.path != id.GetPath() {
		return
	}
	l.errors[id.Hash()] = ledgerEntry{
		path: id.GetPath(),
		err:  err,
	}
}

func (l *errorLedger) get(id tiv.FileID) (error, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.errors[id.Hash()]
	if !ok || e.path != id.GetPath() {
		return nil, false
	}
	return e.err, true
}

func (l *errorLedger) forget(id tiv.FileID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.errors[id.Hash()]; ok && e.path == id.GetPath() {
		delete(l.errors, id.Hash())
	}
}

func (l *errorLedger) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.errors = make(map[uint64]ledgerEntry)
}
