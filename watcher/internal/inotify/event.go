package inotify

import (
	"bytes"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Watch masks, re-exported so callers never import unix directly.
const (
	InCreate     = unix.IN_CREATE
	InDelete     = unix.IN_DELETE
	InModify     = unix.IN_MODIFY
	InMovedFrom  = unix.IN_MOVED_FROM
	InMovedTo    = unix.IN_MOVED_TO
	InDontFollow = unix.IN_DONT_FOLLOW
	InDeleteSelf = unix.IN_DELETE_SELF
	InMoveSelf   = unix.IN_MOVE_SELF
	InIsDir      = unix.IN_ISDIR
	InQOverflow  = unix.IN_Q_OVERFLOW
	InIgnored    = unix.IN_IGNORED
)

// Event represents a single decoded inotify record.
type Event struct {
	Wd     int    // Watch descriptor (as returned by the inotify_add_watch() syscall)
	Mask   uint32 // Mask of events
	Cookie uint32 // Unique cookie associating related events (for rename(2))
	Name   string // File name relative to the watched directory (optional)
}

func (e *Event) HasEvent(h uint32) bool {
	return e.Mask&h == h
}

// ParseEvents decodes every complete record in buf, in arrival order.
// Records are tightly packed: a fixed inotify_event header followed by a
// NUL-padded name of header.Len bytes. The kernel never delivers a partial
// record, so a short tail means a corrupted buffer and is not decoded.
func ParseEvents(buf []byte) []Event {
	var events []Event
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := int(raw.Len)
		if offset+unix.SizeofInotifyEvent+nameLen > len(buf) {
			break
		}
		var name string
		if nameLen > 0 {
			b := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
			name = string(bytes.TrimRight(b, "\x00"))
		}
		events = append(events, Event{
			Wd:     int(raw.Wd),
			Mask:   raw.Mask,
			Cookie: raw.Cookie,
			Name:   name,
		})
		offset += unix.SizeofInotifyEvent + nameLen
	}
	return events
}
