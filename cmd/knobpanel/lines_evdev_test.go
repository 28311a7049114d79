//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"
)

func newTestEvdevLines() *evdevLines {
	e := &evdevLines{
		fd:   -1,
		epfd: -1,
		codes: map[uint16]Line{
			BTN_0: LineA,
			BTN_1: LineB,
			BTN_2: LineButton,
		},
	}
	for l := range e.levels {
		e.levels[l] = High
	}
	return e
}

// TestInputEvent_MatchesKernelLayout checks the wire size equals the native
// struct size, which is what the kernel writes.
func TestInputEvent_MatchesKernelLayout(t *testing.T) {
	if got, want := binary.Size(inputEvent{}), int(unsafe.Sizeof(inputEvent{})); got != want {
		t.Fatalf("binary size %d != native size %d", got, want)
	}
}

func TestEvdevLines_ApplyKeyEvents(t *testing.T) {
	e := newTestEvdevLines()

	e.apply(inputEvent{Type: EV_KEY, Code: BTN_1, Value: evValuePress})
	e.apply(inputEvent{Type: EV_KEY, Code: BTN_1, Value: evValueRepeat})
	e.apply(inputEvent{Type: EV_SYN})
	e.apply(inputEvent{Type: EV_KEY, Code: 0x130, Value: evValuePress}) // unmapped
	e.apply(inputEvent{Type: EV_KEY, Code: BTN_2, Value: evValuePress})
	e.apply(inputEvent{Type: EV_KEY, Code: BTN_1, Value: evValueRelease})

	want := []Edge{
		{LineB, Low},
		{LineButton, Low},
		{LineB, High},
	}
	if len(e.pending) != len(want) {
		t.Fatalf("pending got %v, want %v", e.pending, want)
	}
	for i := range want {
		if e.pending[i] != want[i] {
			t.Errorf("edge %d: got %+v, want %+v", i, e.pending[i], want[i])
		}
	}
	if e.levels[LineB] != High || e.levels[LineButton] != Low {
		t.Errorf("levels got %v", e.levels)
	}
}

// TestEvdevLines_DuplicateStateIsNotAnEdge checks that a press on an already
// low line does not queue a second edge.
func TestEvdevLines_DuplicateStateIsNotAnEdge(t *testing.T) {
	e := newTestEvdevLines()
	e.apply(inputEvent{Type: EV_KEY, Code: BTN_0, Value: evValuePress})
	e.apply(inputEvent{Type: EV_KEY, Code: BTN_0, Value: evValuePress})
	if len(e.pending) != 1 {
		t.Fatalf("expected 1 edge, got %v", e.pending)
	}
}

// TestEvdevLines_DecodeBuffer round-trips raw events through the same decode
// path drain uses.
func TestEvdevLines_DecodeBuffer(t *testing.T) {
	var raw bytes.Buffer
	for _, ev := range []inputEvent{
		{Type: EV_KEY, Code: BTN_0, Value: evValuePress},
		{Type: EV_SYN},
		{Type: EV_KEY, Code: BTN_0, Value: evValueRelease},
	} {
		if err := binary.Write(&raw, binary.LittleEndian, ev); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	e := newTestEvdevLines()
	r := bytes.NewReader(raw.Bytes())
	for r.Len() > 0 {
		var ev inputEvent
		if err := binary.Read(r, binary.LittleEndian, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		e.apply(ev)
	}
	if len(e.pending) != 2 || e.pending[0].Level != Low || e.pending[1].Level != High {
		t.Fatalf("pending got %v", e.pending)
	}
}

func TestEvdevLines_WaitEdgeReturnsPendingFirst(t *testing.T) {
	e := newTestEvdevLines()
	e.pending = []Edge{{LineA, Low}, {LineA, High}}

	for _, want := range e.pending[:] {
		got, ok, err := e.WaitEdge(0)
		if err != nil || !ok {
			t.Fatalf("WaitEdge: ok=%v err=%v", ok, err)
		}
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	}
}
