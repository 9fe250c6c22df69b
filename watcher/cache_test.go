package watcher

import (
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func cachePaths(c *watchCache) []string {
	paths := make([]string, 0, len(c.paths))
	for path := range c.paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func TestCacheInsertEraseLookup(t *testing.T) {
	c := newWatchCache()
	require.True(t, c.isEmpty())

	c.insert(1, "/w")
	c.insert(2, "/w/d")
	require.False(t, c.isEmpty())
	require.Equal(t, 2, c.size())
	require.True(t, c.contains(1))

	path, ok := c.pathOf(2)
	require.True(t, ok)
	require.Equal(t, "/w/d", path)

	wd, ok := c.wdOf("/w")
	require.True(t, ok)
	require.Equal(t, 1, wd)

	_, ok = c.wdOf("/nope")
	require.False(t, ok)

	c.erase(2)
	require.False(t, c.contains(2))
	_, ok = c.wdOf("/w/d")
	require.False(t, ok)
	require.Equal(t, 1, c.size())
}

func TestCacheReinsertSameDescriptor(t *testing.T) {
	c := newWatchCache()
	c.insert(1, "/w")
	c.insert(1, "/w")
	require.Equal(t, 1, c.size())

	// The kernel hands the same descriptor back when a path is re-added.
	c.insert(1, "/elsewhere")
	require.Equal(t, 1, c.size())
	_, ok := c.wdOf("/w")
	require.False(t, ok)
}

func TestPathPrefixRule(t *testing.T) {
	require.True(t, hasPathPrefix("/foo", "/foo"))
	require.True(t, hasPathPrefix("/foo/bar", "/foo"))
	require.True(t, hasPathPrefix("/foo/bar/baz", "/foo/bar"))
	require.False(t, hasPathPrefix("/foobar", "/foo"))
	require.False(t, hasPathPrefix("/foo", "/foo/bar"))
	require.False(t, hasPathPrefix("/other", "/foo"))
}

func TestRewritePrefixRoundTrip(t *testing.T) {
	c := newWatchCache()
	c.insert(1, "/w")
	c.insert(2, "/w/d")
	c.insert(3, "/w/d/e")
	c.insert(4, "/w/dx")

	c.rewritePrefix("/w/d", "/w/D")
	require.Equal(t, []string{"/w", "/w/D", "/w/D/e", "/w/dx"}, cachePaths(c))

	wd, ok := c.wdOf("/w/D/e")
	require.True(t, ok)
	require.Equal(t, 3, wd)

	c.rewritePrefix("/w/D", "/w/d")
	require.Equal(t, []string{"/w", "/w/d", "/w/d/e", "/w/dx"}, cachePaths(c))
}

func TestZapPrefix(t *testing.T) {
	c := newWatchCache()
	c.insert(1, "/w")
	c.insert(2, "/w/d")
	c.insert(3, "/w/d/e")
	c.insert(4, "/w/dx")

	var removed []int
	count, err := c.zapPrefix("/w/d", func(wd int) error {
		removed = append(removed, wd)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, count)
	sort.Ints(removed)
	require.Equal(t, []int{2, 3}, removed)
	require.Equal(t, []string{"/w", "/w/dx"}, cachePaths(c))
}

func TestZapPrefixRemoveFailure(t *testing.T) {
	c := newWatchCache()
	c.insert(1, "/w/d")
	c.insert(2, "/w/d/e")

	boom := errors.New("boom")
	_, err := c.zapPrefix("/w/d", func(wd int) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestClear(t *testing.T) {
	c := newWatchCache()
	c.insert(1, "/w")
	c.insert(2, "/w/d")

	var removed []int
	c.clear(func(wd int) error {
		removed = append(removed, wd)
		return nil
	})
	require.True(t, c.isEmpty())
	require.Len(t, removed, 2)
}
