package shaper

import (
	"sort"
	"sync"
)

// DeviceLocks serializes kernel-state changes per device name. Two
// sequences touching the same interface or bridge must not interleave
// their clear/create/attach steps; operations on disjoint devices stay
// independent and may run in parallel.
type DeviceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{locks: make(map[string]*sync.Mutex)}
}

func (d *DeviceLocks) get(name string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[name]
	if !ok {
		l = &sync.Mutex{}
		d.locks[name] = l
	}
	return l
}

// Lock acquires the locks for all named devices, duplicates collapsed, in
// sorted name order so two callers locking overlapping sets cannot
// deadlock. The returned function releases them in reverse order.
func (d *DeviceLocks) Lock(names ...string) func() {
	uniq := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		uniq = append(uniq, n)
	}
	sort.Strings(uniq)

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, n := range uniq {
		l := d.get(n)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
