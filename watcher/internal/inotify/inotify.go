// Package inotify is the kernel boundary of the watcher: a thin wrapper
// around the inotify, epoll and eventfd syscalls. It is the only package
// that names them. Callers get integer watch descriptors, raw event bytes
// and a cancelable readiness wait; everything else lives above.
package inotify

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Readiness reports which source woke a Wait call.
type Readiness int

const (
	// WatchReady means the inotify descriptor has records to drain.
	WatchReady Readiness = iota
	// Interrupted means the eventfd was signalled by Interrupt.
	Interrupted
)

const (
	// maxEvents is how many maximum-size records one drain buffer holds;
	// records with shorter names pack more densely.
	maxEvents = 1024
	// BufferSize is the drain buffer size callers must allocate. Each
	// record is at most one header plus a NUL-terminated NAME_MAX name.
	BufferSize = maxEvents * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)

	watchMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MODIFY |
		unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_DONT_FOLLOW
	rootMask = watchMask | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF
)

// Inotify owns the three descriptors of one watch instance: the inotify
// fd events are read from, the eventfd used to interrupt a blocked wait,
// and the epoll fd both are registered on.
type Inotify struct {
	inotifyFd int
	eventFd   int
	epollFd   int
}

// New creates the inotify instance, the interrupt eventfd and the epoll
// instance, and registers both readable descriptors on the epoll. On any
// failure the descriptors acquired so far are closed.
func New() (*Inotify, error) {
	in := &Inotify{inotifyFd: -1, eventFd: -1, epollFd: -1}

	var err error
	in.inotifyFd, err = unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize inotify")
	}
	in.eventFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		in.Close()
		return nil, errors.Wrap(err, "failed to initialize event file descriptor")
	}
	in.epollFd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		in.Close()
		return nil, errors.Wrap(err, "failed to initialize epoll instance")
	}
	for _, fd := range []int{in.inotifyFd, in.eventFd} {
		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(in.epollFd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			in.Close()
			return nil, errors.Wrap(err, "failed to register descriptor with epoll")
		}
	}
	return in, nil
}

// AddWatch registers path with the inotify instance and returns its watch
// descriptor. The root watch additionally arms self-delete and self-move
// notification. Re-adding an already watched path returns the same
// descriptor; the kernel treats it as a mask update, not an error.
func (in *Inotify) AddWatch(path string, root bool) (int, error) {
	mask := uint32(watchMask)
	if root {
		mask = rootMask
	}
	wd, err := unix.InotifyAddWatch(in.inotifyFd, path, mask)
	if err != nil {
		return -1, errors.Wrapf(err, "failed to add watch for directory: %s", path)
	}
	return wd, nil
}

// RemoveWatch deregisters a watch descriptor. The kernel will queue an
// IN_IGNORED record for it, which ingestion drops.
func (in *Inotify) RemoveWatch(wd int) error {
	if _, err := unix.InotifyRmWatch(in.inotifyFd, uint32(wd)); err != nil {
		return errors.Wrapf(err, "failed to remove watch %d", wd)
	}
	return nil
}

// Wait blocks until the inotify descriptor is readable or Interrupt is
// called. The interrupt is checked first so a stop request wins over
// pending records.
func (in *Inotify) Wait() (Readiness, error) {
	events := make([]unix.EpollEvent, 2)
	for {
		n, err := unix.EpollWait(in.epollFd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errors.Wrap(err, "failed to wait for events")
		}
		for i := 0; i < n; i++ {
			if int(events[i].Fd) == in.eventFd {
				// Reset the counter so one signal is reported once.
				var counter [8]byte
				_, _ = unix.Read(in.eventFd, counter[:])
				return Interrupted, nil
			}
		}
		for i := 0; i < n; i++ {
			if int(events[i].Fd) == in.inotifyFd {
				return WatchReady, nil
			}
		}
	}
}

// Drain reads one burst of raw records into buf and returns the byte
// count. Records are atomic; the kernel never splits one across reads.
func (in *Inotify) Drain(buf []byte) (int, error) {
	for {
		n, err := unix.Read(in.inotifyFd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errors.Wrap(err, "failed to read events from inotify")
		}
		return n, nil
	}
}

// Interrupt wakes any blocked Wait by bumping the eventfd counter. One
// write guarantees one wakeup.
func (in *Inotify) Interrupt() error {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(in.eventFd, one[:]); err != nil {
		return errors.Wrap(err, "failed to signal event file descriptor")
	}
	return nil
}

// Close deregisters and closes all three descriptors. Safe to call more
// than once and on a partially constructed instance.
func (in *Inotify) Close() error {
	if in.epollFd >= 0 {
		_ = unix.EpollCtl(in.epollFd, unix.EPOLL_CTL_DEL, in.inotifyFd, nil)
		_ = unix.EpollCtl(in.epollFd, unix.EPOLL_CTL_DEL, in.eventFd, nil)
	}
	var first error
	for _, fd := range []int{in.inotifyFd, in.eventFd, in.epollFd} {
		if fd < 0 {
			continue
		}
		if err := unix.Close(fd); err != nil && first == nil {
			first = errors.Wrap(err, "failed to close descriptor")
		}
	}
	in.inotifyFd, in.eventFd, in.epollFd = -1, -1, -1
	return first
}
