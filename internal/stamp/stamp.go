// Package stamp tracks, per file, the modification stamp and theme flag of the
// last analysis pass so unchanged files are not rescanned.
package stamp

import "sync"

// Composite folds the in-memory buffer, saved document and on-disk counters
// into one value. Any single counter changing changes the result.
func Composite(buffer, document, disk uint64) uint64 {
	return buffer ^ document ^ disk
}

type state struct {
	stamp    uint64
	hasStamp bool
	dark     bool
	hasTheme bool
}

type Cache struct {
	mu    sync.Mutex
	files map[string]state
}

func NewCache() *Cache {
	return &Cache{files: make(map[string]state)}
}

// IsStale reports whether path has no recorded stamp or a different one.
func (c *Cache) IsStale(path string, stamp uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.files[path]
	return !ok || !st.hasStamp || st.stamp != stamp
}

func (c *Cache) Update(path string, stamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.files[path]
	st.stamp = stamp
	st.hasStamp = true
	c.files[path] = st
}

// ThemeChanged reports whether rendered output for path was produced under a
// different theme, or never produced at all.
func (c *Cache) ThemeChanged(path string, dark bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.files[path]
	return !ok || !st.hasTheme || st.dark != dark
}

func (c *Cache) SetTheme(path string, dark bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.files[path]
	st.dark = dark
	st.hasTheme = true
	c.files[path] = st
}

// Theme returns the last theme recorded for path.
func (c *Cache) Theme(path string) (dark bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.files[path]
	return st.dark, ok && st.hasTheme
}

// ForgetStamp drops the recorded stamp of path so the next pass treats the
// file as changed. The theme is kept.
func (c *Cache) ForgetStamp(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.files[path]
	if !ok {
		return
	}
	st.stamp = 0
	st.hasStamp = false
	c.files[path] = st
}

func (c *Cache) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, path)
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = make(map[string]state)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files)
}
