package kernel

import "testing"

func TestFakeSourceReadBatchDrains(t *testing.T) {
	src := NewFakeSource(
		Event{Version: 1, Mask: MaskOpenPermission, Fd: 3, OriginatingPID: 100},
		Event{Version: 1, Mask: MaskOpenPermission, Fd: 4, OriginatingPID: 101},
	)

	batch, err := src.ReadBatch()
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("ReadBatch() returned %d events, want 2", len(batch))
	}

	empty, err := src.ReadBatch()
	if err != nil || len(empty) != 0 {
		t.Fatalf("second ReadBatch should be empty, got %v, err=%v", empty, err)
	}
}

func TestFakeSourcePushAfterDrain(t *testing.T) {
	src := NewFakeSource()
	src.Push(Event{Version: 1, Mask: MaskOpenPermission, Fd: 7})

	batch, err := src.ReadBatch()
	if err != nil || len(batch) != 1 {
		t.Fatalf("ReadBatch() = %v, %v, want one pushed event", batch, err)
	}
}

func TestFakeSourceRespondRecordsResponse(t *testing.T) {
	src := NewFakeSource()
	if err := src.Respond(9, ResponseDeny); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	got, ok := src.ResponseFor(9)
	if !ok || got != ResponseDeny {
		t.Errorf("ResponseFor(9) = %v, %v, want ResponseDeny, true", got, ok)
	}
	if _, ok := src.ResponseFor(999); ok {
		t.Error("ResponseFor should report false for an fd that was never responded to")
	}
}

func TestErrVersionMismatchMessage(t *testing.T) {
	err := &ErrVersionMismatch{Got: 2, Want: 3}
	if err.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}
