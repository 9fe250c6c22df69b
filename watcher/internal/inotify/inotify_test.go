package inotify

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestInstance(t *testing.T) *Inotify {
	t.Helper()
	in, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })
	return in
}

func drainEvents(t *testing.T, in *Inotify) []Event {
	t.Helper()
	ready, err := in.Wait()
	require.NoError(t, err)
	require.Equal(t, WatchReady, ready)

	buf := make([]byte, BufferSize)
	n, err := in.Drain(buf)
	require.NoError(t, err)
	return ParseEvents(buf[:n])
}

func TestAddWatchAndDrain(t *testing.T) {
	in := newTestInstance(t)
	dir := t.TempDir()

	wd, err := in.AddWatch(dir, true)
	require.NoError(t, err)
	require.GreaterOrEqual(t, wd, 0)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))

	events := drainEvents(t, in)
	require.NotEmpty(t, events)
	require.Equal(t, wd, events[0].Wd)
	require.Equal(t, "a.txt", events[0].Name)
	require.True(t, events[0].HasEvent(InCreate))
}

func TestReAddReturnsSameDescriptor(t *testing.T) {
	in := newTestInstance(t)
	dir := t.TempDir()

	wd1, err := in.AddWatch(dir, true)
	require.NoError(t, err)
	wd2, err := in.AddWatch(dir, false)
	require.NoError(t, err)
	require.Equal(t, wd1, wd2)
}

func TestAddWatchNotADirectory(t *testing.T) {
	in := newTestInstance(t)
	_, err := in.AddWatch(filepath.Join(t.TempDir(), "missing"), true)
	require.Error(t, err)
}

func TestRemoveWatch(t *testing.T) {
	in := newTestInstance(t)
	dir := t.TempDir()

	wd, err := in.AddWatch(dir, true)
	require.NoError(t, err)
	require.NoError(t, in.RemoveWatch(wd))
	require.Error(t, in.RemoveWatch(wd))
}

func TestInterruptWakesWait(t *testing.T) {
	in := newTestInstance(t)

	result := make(chan Readiness, 1)
	go func() {
		ready, err := in.Wait()
		if err == nil {
			result <- ready
		}
	}()

	// Give the waiter a moment to block before signalling.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, in.Interrupt())

	select {
	case ready := <-result:
		require.Equal(t, Interrupted, ready)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait was not interrupted")
	}
}

func TestCloseTwice(t *testing.T) {
	in, err := New()
	require.NoError(t, err)
	require.NoError(t, in.Close())
	require.NoError(t, in.Close())
}

func rawRecord(wd int32, mask, cookie uint32, name string, pad int) []byte {
	raw := unix.InotifyEvent{Wd: wd, Mask: mask, Cookie: cookie, Len: uint32(len(name) + pad)}
	buf := append([]byte(nil), (*(*[unix.SizeofInotifyEvent]byte)(unsafe.Pointer(&raw)))[:]...)
	buf = append(buf, name...)
	buf = append(buf, make([]byte, pad)...)
	return buf
}

func TestParseEvents(t *testing.T) {
	buf := rawRecord(3, InCreate|InIsDir, 0, "sub", 13)
	buf = append(buf, rawRecord(-1, InQOverflow, 0, "", 0)...)
	buf = append(buf, rawRecord(5, InMovedFrom, 42, "a.txt", 3)...)

	events := ParseEvents(buf)
	require.Len(t, events, 3)

	require.Equal(t, 3, events[0].Wd)
	require.Equal(t, "sub", events[0].Name)
	require.True(t, events[0].HasEvent(InCreate))
	require.True(t, events[0].HasEvent(InIsDir))

	require.Equal(t, -1, events[1].Wd)
	require.Empty(t, events[1].Name)
	require.True(t, events[1].HasEvent(InQOverflow))

	require.Equal(t, 5, events[2].Wd)
	require.Equal(t, uint32(42), events[2].Cookie)
	require.Equal(t, "a.txt", events[2].Name)
}

func TestParseEventsEmpty(t *testing.T) {
	require.Empty(t, ParseEvents(nil))
	require.Empty(t, ParseEvents(make([]byte, unix.SizeofInotifyEvent-1)))
}
