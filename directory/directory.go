// Package directory maintains an ordered listing of the image files in a
// single directory and a cursor into it. Navigation steps return the ids
// that must be made resident: the new current file plus a lookahead window
// in the direction of travel.
package directory

import (
	"cmp"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/hatlen/tiv/pkg/rlog"
	"github.com/hatlen/tiv/tiv"
)

// Entry is a single file in the listing. ModTime and Size are captured at
// enumeration time and refreshed on [Directory.Reorder] and
// [Directory.Refresh].
type Entry struct {
	ID      tiv.FileID
	ModTime time.Time
	Size    int64
}

// Directory is an ordered listing with a cursor. It is not safe for
// concurrent use: the navigation methods are meant to be called from the
// single goroutine that owns the UI state.
//
// The cursor index is always in [0, len) while the listing is non-empty.
type Directory struct {
	path       string
	extensions tiv.Extensions
	order      tiv.Order
	direction  tiv.Direction

	entries []Entry
	index   int
}

type Options struct {
	// Path is the directory to list.
	Path string
	// Extensions is the allow-list of file extensions to include.
	Extensions tiv.Extensions

	Order     tiv.Order
	Direction tiv.Direction

	// Anchor is an optional file to position the cursor on. The cursor
	// falls back to the first entry when the file is not in the listing.
	Anchor string
}

// New builds the listing. An unreadable path degrades to an empty listing
// instead of failing: the caller decides how to present "nothing to show".
func New(opts Options) *Directory {
	d := &Directory{
		path:       filepath.Clean(opts.Path),
		extensions: opts.Extensions,
		order:      opts.Order,
		direction:  opts.Direction,
	}
	d.entries = d.enumerate()
	d.sort()
	if opts.Anchor != "" {
		d.anchor(filepath.Clean(opts.Anchor))
	}
	return d
}

func (d *Directory) enumerate() []Entry {
	dirEntries, err := os.ReadDir(d.path)
	if err != nil {
		rlog.Warnf("couldn't read directory %q: %s", d.path, err)
		return nil
	}

	res := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !d.extensions.Contains(tiv.GetFileExt(de.Name())) {
			continue
		}

		path := filepath.Join(d.path, de.Name())

		// Stat instead of DirEntry.Info to follow symlinks.
		info, err := os.Stat(path)
		if err != nil {
			rlog.Debugf("couldn't stat %q: %s", path, err)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		res = append(res, Entry{
			ID:      tiv.NewFileID(path),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return res
}

func (d *Directory) sort() {
	// Numeric collation compares embedded numbers by value, so "page-2"
	// sorts before "page-10".
	collator := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)

	slices.SortStableFunc(d.entries, func(a, b Entry) int {
		var res int
		switch d.order {
		case tiv.OrderModTime:
			res = a.ModTime.Compare(b.ModTime)
		case tiv.OrderSize:
			res = cmp.Compare(a.Size, b.Size)
		}
		if res == 0 {
			res = collator.CompareString(a.ID.GetName(), b.ID.GetName())
		}
		if d.direction == tiv.Descending {
			res = -res
		}
		return res
	})
}

// anchor moves the cursor to the entry with the given cleaned path,
// or to the first entry if it is not in the listing.
func (d *Directory) anchor(path string) {
	d.index = 0
	for i, e := range d.entries {
		if e.ID.GetPath() == path {
			d.index = i
			return
		}
	}
}

// Current returns the entry under the cursor. The second return value is
// false iff the listing is empty.
func (d *Directory) Current() (Entry, bool) {
	if len(d.entries) == 0 {
		return Entry{}, false
	}
	return d.entries[d.index], true
}

// Next advances the cursor by one and returns the inclusive range from the
// new current file to at most lookahead files after it. At the last entry
// the cursor stays put and only that entry is returned, so the caller still
// knows what must be resident. An empty listing returns nil.
func (d *Directory) Next(lookahead int) []tiv.FileID {
	if len(d.entries) == 0 {
		return nil
	}
	if d.index == len(d.entries)-1 {
		return d.ids(d.index, d.index)
	}

	d.index++
	return d.ids(d.index, min(d.index+lookahead, len(d.entries)-1))
}

// Prev is symmetric to [Directory.Next]: it decrements the cursor and
// returns the range from at most lookahead files before the new current
// file up to it, in listing order.
func (d *Directory) Prev(lookahead int) []tiv.FileID {
	if len(d.entries) == 0 {
		return nil
	}
	if d.index == 0 {
		return d.ids(0, 0)
	}

	d.index--
	return d.ids(max(d.index-lookahead, 0), d.index)
}

// Window returns the range [Directory.Next] would return without moving
// the cursor. Used to warm the caches on startup and after a clear.
func (d *Directory) Window(lookahead int) []tiv.FileID {
	if len(d.entries) == 0 {
		return nil
	}
	return d.ids(d.index, min(d.index+lookahead, len(d.entries)-1))
}

func (d *Directory) ids(from, to int) []tiv.FileID {
	res := make([]tiv.FileID, 0, to-from+1)
	for _, e := range d.entries[from : to+1] {
		res = append(res, e.ID)
	}
	return res
}

// Reorder re-sorts the listing with a new key and direction. Entries whose
// backing file has disappeared are dropped, the rest get fresh mod times
// and sizes. The cursor follows the current file to its new position and
// falls back to the first entry when the file vanished.
func (d *Directory) Reorder(order tiv.Order, direction tiv.Direction) {
	d.order = order
	d.direction = direction

	var anchor string
	if cur, ok := d.Current(); ok {
		anchor = cur.ID.GetPath()
	}

	entries := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		info, err := os.Stat(e.ID.GetPath())
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		e.ModTime = info.ModTime()
		e.Size = info.Size()
		entries = append(entries, e)
	}
	d.entries = entries

	d.sort()
	d.anchor(anchor)
}

// Refresh rebuilds the listing from disk, keeping the cursor on the
// current file when it survived the change.
func (d *Directory) Refresh() {
	var anchor string
	if cur, ok := d.Current(); ok {
		anchor = cur.ID.GetPath()
	}

	d.entries = d.enumerate()
	d.sort()
	d.anchor(anchor)
}

// Len reports the number of entries in the listing.
func (d *Directory) Len() int {
	return len(d.entries)
}

// Index reports the cursor position. Meaningless when the listing is empty.
func (d *Directory) Index() int {
	return d.index
}

// Path reports the listed directory.
func (d *Directory) Path() string {
	return d.path
}

// Order reports the current sort key and direction.
func (d *Directory) Order() (tiv.Order, tiv.Direction) {
	return d.order, d.direction
}
