//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// inputEvent is struct input_event from <linux/input.h>:
//
//	struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
//
// unix.Timeval has the native field widths, so the struct decodes correctly on
// both 32-bit and 64-bit ARM boards.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// evdevLines is a LineSource over a Linux input device (typically a gpio-keys
// device tree overlay) that reports the knob contacts as three key codes.
// A pressed key is a closed contact, i.e. Low.
//
// The fd is non-blocking and watched with epoll, so WaitEdge honours its
// timeout and Level can drain pending events without blocking.
type evdevLines struct {
	path  string
	fd    int
	epfd  int
	codes map[uint16]Line

	levels  [lineCount]Level
	pending []Edge

	epollEvents []unix.EpollEvent
	buf         []byte
	evSize      int
}

func openEvdevLines(cfg EvdevInputConfig) (*evdevLines, error) {
	fd, err := unix.Open(cfg.Device, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &HardwareError{Op: "open", Line: cfg.Device, Err: err}
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return nil, &HardwareError{Op: "epoll_create1", Err: err}
	}

	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		unix.Close(epfd)
		unix.Close(fd)
		return nil, &HardwareError{Op: "epoll_ctl_add", Line: cfg.Device, Err: err}
	}

	evSize := binary.Size(inputEvent{})
	e := &evdevLines{
		path: cfg.Device,
		fd:   fd,
		epfd: epfd,
		codes: map[uint16]Line{
			cfg.CodeA:      LineA,
			cfg.CodeB:      LineB,
			cfg.CodeButton: LineButton,
		},
		epollEvents: make([]unix.EpollEvent, 4),
		buf:         make([]byte, evSize*32),
		evSize:      evSize,
	}

	if err := e.seedLevels(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// seedLevels reads the current key state with EVIOCGKEY so the first edges are
// decoded against the real contact positions.
func (e *evdevLines) seedLevels() error {
	const keyBytes = KEY_MAX/8 + 1
	var bits [keyBytes]byte

	// EVIOCGKEY(len) = _IOC(_IOC_READ, 'E', 0x18, len)
	req := uintptr(2<<30 | keyBytes<<16 | 'E'<<8 | 0x18)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(e.fd), req, uintptr(unsafe.Pointer(&bits[0]))); errno != 0 {
		return &HardwareError{Op: "ioctl EVIOCGKEY", Line: e.path, Err: errno}
	}

	for code, line := range e.codes {
		pressed := bits[code/8]&(1<<(code%8)) != 0
		e.levels[line] = Level(!pressed)
	}
	return nil
}

func (e *evdevLines) Level(l Line) (Level, error) {
	if l >= lineCount {
		return Low, &HardwareError{Op: "read", Line: l.String(), Err: errors.New("unknown line")}
	}
	// Fold in anything the kernel has queued so the level is current.
	if err := e.poll(0); err != nil {
		return Low, err
	}
	return e.levels[l], nil
}

func (e *evdevLines) WaitEdge(timeout time.Duration) (Edge, bool, error) {
	if len(e.pending) == 0 {
		if err := e.poll(timeout); err != nil {
			return Edge{}, false, err
		}
	}
	if len(e.pending) == 0 {
		return Edge{}, false, nil
	}
	edge := e.pending[0]
	e.pending = e.pending[1:]
	return edge, true, nil
}

// poll waits up to timeout for the device to become readable, then drains it.
func (e *evdevLines) poll(timeout time.Duration) error {
	ms := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(e.epfd, e.epollEvents, ms)
	if err != nil {
		// Interrupted by a signal: report as a timeout and let the caller loop.
		if err == syscall.EINTR {
			return nil
		}
		return &HardwareError{Op: "epoll_wait", Line: e.path, Err: err}
	}

	for i := 0; i < n; i++ {
		if e.epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			return &HardwareError{Op: "poll", Line: e.path, Err: errors.New("device error or hangup")}
		}
	}
	if n == 0 {
		return nil
	}
	return e.drain()
}

func (e *evdevLines) drain() error {
	reader := bytes.NewReader(nil)
	for {
		n, err := unix.Read(e.fd, e.buf)
		if err != nil {
			if err == unix.EAGAIN || err == syscall.EINTR {
				return nil
			}
			return &HardwareError{Op: "read", Line: e.path, Err: err}
		}
		if n == 0 {
			return &HardwareError{Op: "read", Line: e.path, Err: errors.New("device closed")}
		}

		reader.Reset(e.buf[:n-n%e.evSize])
		for reader.Len() > 0 {
			var ev inputEvent
			if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
				break
			}
			e.apply(ev)
		}
	}
}

// apply records a key event on one of the knob codes as an edge.
func (e *evdevLines) apply(ev inputEvent) {
	if ev.Type != EV_KEY || ev.Value == evValueRepeat {
		return
	}
	line, ok := e.codes[ev.Code]
	if !ok {
		return
	}
	lvl := Level(ev.Value == evValueRelease)
	if e.levels[line] == lvl {
		return
	}
	e.levels[line] = lvl
	e.pending = append(e.pending, Edge{Line: line, Level: lvl})
}

func (e *evdevLines) Close() error {
	var errs []error
	if e.epfd >= 0 {
		if err := unix.Close(e.epfd); err != nil {
			errs = append(errs, fmt.Errorf("close epoll: %w", err))
		}
		e.epfd = -1
	}
	if e.fd >= 0 {
		if err := unix.Close(e.fd); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.path, err))
		}
		e.fd = -1
	}
	return errors.Join(errs...)
}

func openEvdevSource(cfg EvdevInputConfig) (LineSource, error) {
	l, err := openEvdevLines(cfg)
	if err != nil {
		return nil, err
	}
	return l, nil
}
