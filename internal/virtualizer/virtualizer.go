// Package virtualizer defers mounting list items that are outside the
// viewport. Unmounted items keep their last measured height as a
// placeholder so the list's total height does not move while scrolling.
package virtualizer

import "sync"

// KeyFunc returns the stable identity of the item at index.
type KeyFunc func(index int) string

// Options tunes a List. Overscan is applied above and below the viewport.
type Options struct {
	Overscan        int
	EstimatedHeight int
	Gap             int
}

const defaultEstimatedHeight = 3

// Observer decides whether a slot intersects the observed region.
type Observer interface {
	Intersecting(top, height int) bool
}

// Viewport is the geometric Observer of a scroll container.
type Viewport struct {
	ScrollTop int
	Height    int
	Overscan  int
}

// Intersecting reports whether [top, top+height) overlaps the viewport
// expanded by Overscan on both sides. Zero-height slots count at their top.
func (v Viewport) Intersecting(top, height int) bool {
	lo := v.ScrollTop - v.Overscan
	hi := v.ScrollTop + v.Height + v.Overscan
	if height <= 0 {
		return top >= lo && top < hi
	}
	return top < hi && top+height > lo
}

// Slot is the laid-out position of one item.
type Slot struct {
	Index   int
	Key     string
	Top     int
	Height  int
	Mounted bool
}

// Change reports that an item was mounted or unmounted by Update.
type Change struct {
	Index   int
	Mounted bool
}

// List tracks the mount state and cached heights of a flow list of items.
type List struct {
	mu      sync.Mutex
	n       int
	key     KeyFunc
	opts    Options
	keys    map[int]string
	heights map[int]int
	mounted map[int]bool
}

func New(n int, key KeyFunc, opts Options) *List {
	if opts.EstimatedHeight <= 0 {
		opts.EstimatedHeight = defaultEstimatedHeight
	}
	return &List{
		n:       n,
		key:     key,
		opts:    opts,
		keys:    map[int]string{},
		heights: map[int]int{},
		mounted: map[int]bool{},
	}
}

func (l *List) Options() Options {
	return l.opts
}

// SetLen changes the item count; state of indices past the end is dropped.
func (l *List) SetLen(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := n; i < l.n; i++ {
		delete(l.keys, i)
		delete(l.heights, i)
		delete(l.mounted, i)
	}
	l.n = n
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// ViewportAt builds a Viewport using the list's overscan.
func (l *List) ViewportAt(scrollTop, height int) Viewport {
	return Viewport{ScrollTop: scrollTop, Height: height, Overscan: l.opts.Overscan}
}

// Update lays the items out and mounts exactly those the observer sees.
// An index whose key changed loses its cached height.
func (l *List) Update(obs Observer) []Change {
	l.mu.Lock()
	defer l.mu.Unlock()

	var changes []Change
	top := 0
	for i := 0; i < l.n; i++ {
		l.syncKeyLocked(i)
		h := l.heightLocked(i)
		in := obs.Intersecting(top, h)
		if in != l.mounted[i] {
			l.mounted[i] = in
			changes = append(changes, Change{Index: i, Mounted: in})
		}
		top += h + l.opts.Gap
	}
	return changes
}

func (l *List) syncKeyLocked(i int) {
	if l.key == nil {
		return
	}
	k := l.key(i)
	if prev, ok := l.keys[i]; ok && prev != k {
		delete(l.heights, i)
		l.mounted[i] = false
	}
	l.keys[i] = k
}

// Measure records the rendered height of a mounted item. It returns true
// only when the cached value changed.
func (l *List) Measure(index, height int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= l.n || !l.mounted[index] || height < 0 {
		return false
	}
	if prev, ok := l.heights[index]; ok && prev == height {
		return false
	}
	l.heights[index] = height
	return true
}

// Height is the measured height of index, or the estimate.
func (l *List) Height(index int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heightLocked(index)
}

func (l *List) heightLocked(index int) int {
	if h, ok := l.heights[index]; ok {
		return h
	}
	return l.opts.EstimatedHeight
}

// Measured reports whether index has a cached height.
func (l *List) Measured(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.heights[index]
	return ok
}

func (l *List) Mounted(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mounted[index]
}

// Slots returns the current layout.
func (l *List) Slots() []Slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slots := make([]Slot, 0, l.n)
	top := 0
	for i := 0; i < l.n; i++ {
		h := l.heightLocked(i)
		slots = append(slots, Slot{Index: i, Key: l.keys[i], Top: top, Height: h, Mounted: l.mounted[i]})
		top += h + l.opts.Gap
	}
	return slots
}

// TotalHeight is the sum of slot heights plus the gaps between them.
func (l *List) TotalHeight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for i := 0; i < l.n; i++ {
		total += l.heightLocked(i)
	}
	if l.n > 1 {
		total += (l.n - 1) * l.opts.Gap
	}
	return total
}

// Offset returns the top of index.
func (l *List) Offset(index int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	top := 0
	for i := 0; i < index && i < l.n; i++ {
		top += l.heightLocked(i) + l.opts.Gap
	}
	return top
}
