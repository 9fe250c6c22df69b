package watcher

import (
	"os"
	"strings"
)

// watchCache is the authoritative mapping between kernel watch
// descriptors and the absolute directory paths they stand for. It is
// mutated only by the interpreter and by recovery; no two entries ever
// share a path.
type watchCache struct {
	wds   map[int]string
	paths map[string]int
}

func newWatchCache() *watchCache {
	return &watchCache{
		wds:   make(map[int]string),
		paths: make(map[string]int),
	}
}

func (c *watchCache) insert(wd int, path string) {
	if old, ok := c.wds[wd]; ok {
		delete(c.paths, old)
	}
	if oldWd, ok := c.paths[path]; ok {
		delete(c.wds, oldWd)
	}
	c.wds[wd] = path
	c.paths[path] = wd
}

func (c *watchCache) erase(wd int) {
	if path, ok := c.wds[wd]; ok {
		delete(c.paths, path)
		delete(c.wds, wd)
	}
}

func (c *watchCache) pathOf(wd int) (string, bool) {
	path, ok := c.wds[wd]
	return path, ok
}

func (c *watchCache) wdOf(path string) (int, bool) {
	wd, ok := c.paths[path]
	return wd, ok
}

func (c *watchCache) contains(wd int) bool {
	_, ok := c.wds[wd]
	return ok
}

func (c *watchCache) isEmpty() bool {
	return len(c.wds) == 0
}

func (c *watchCache) size() int {
	return len(c.wds)
}

// rewritePrefix updates, in place, every entry whose path is oldPrefix or
// a descendant of it, substituting newPrefix. The kernel keeps watches
// valid across in-tree moves, so descriptors are untouched.
func (c *watchCache) rewritePrefix(oldPrefix, newPrefix string) {
	for wd, path := range c.wds {
		if !hasPathPrefix(path, oldPrefix) {
			continue
		}
		rewritten := newPrefix + path[len(oldPrefix):]
		delete(c.paths, path)
		c.wds[wd] = rewritten
		c.paths[rewritten] = wd
	}
}

// zapPrefix removes every entry whose path is prefix or a descendant of
// it, deregistering each watch through remove. It returns how many
// entries were dropped and the first remove failure, which the caller
// treats as a desynchronized cache.
func (c *watchCache) zapPrefix(prefix string, remove func(wd int) error) (int, error) {
	count := 0
	for wd, path := range c.wds {
		if !hasPathPrefix(path, prefix) {
			continue
		}
		if err := remove(wd); err != nil {
			return count, err
		}
		delete(c.paths, path)
		delete(c.wds, wd)
		count++
	}
	return count, nil
}

// clear drops every entry, deregistering each watch. Remove failures are
// ignored; clear runs during teardown when the kernel side may already
// have revoked the descriptors.
func (c *watchCache) clear(remove func(wd int) error) {
	for wd := range c.wds {
		_ = remove(wd)
	}
	c.wds = make(map[int]string)
	c.paths = make(map[string]int)
}

// hasPathPrefix reports whether candidate equals prefix or lives below
// it. The next byte after the prefix must be the separator, so /foo is
// not a prefix of /foobar.
func hasPathPrefix(candidate, prefix string) bool {
	if !strings.HasPrefix(candidate, prefix) {
		return false
	}
	return len(candidate) == len(prefix) || candidate[len(prefix)] == os.PathSeparator
}
