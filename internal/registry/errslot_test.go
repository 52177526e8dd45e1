package registry

import "testing"

func TestErrorSlotLastWriteWins(t *testing.T) {
	slot := NewErrorSlot()
	if _, ok := slot.Peek(); ok {
		t.Fatalf("expected empty slot")
	}

	slot.WeaklyRecord("first")
	slot.WeaklyRecordf("second %d", 2)

	msg, ok := slot.Peek()
	if !ok || msg != "second 2" {
		t.Fatalf("expected last write to win, got %q (ok=%t)", msg, ok)
	}
	again, _ := slot.Peek()
	if again != msg {
		t.Fatalf("peek must not consume the message, got %q", again)
	}
}

func TestErrorSlotDropsContendedWrites(t *testing.T) {
	slot := NewErrorSlot()
	slot.WeaklyRecord("kept")

	slot.mu.Lock()
	slot.WeaklyRecord("dropped")
	slot.mu.Unlock()

	msg, _ := slot.Peek()
	if msg != "kept" {
		t.Fatalf("contended write should be dropped, got %q", msg)
	}
}

func TestErrorSlotPeekUnderContention(t *testing.T) {
	slot := NewErrorSlot()

	slot.mu.Lock()
	msg, ok := slot.Peek()
	slot.mu.Unlock()

	if !ok || msg != unreadableError {
		t.Fatalf("expected unreadable marker, got %q (ok=%t)", msg, ok)
	}
}

func TestNilErrorSlotIsInert(t *testing.T) {
	var slot *ErrorSlot
	slot.WeaklyRecord("ignored")
	if _, ok := slot.Peek(); ok {
		t.Fatalf("nil slot should report no error")
	}
}
