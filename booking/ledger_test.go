package booking

import (
	"testing"
	"time"
)

func encodeT(t *testing.T, cmd *Command) []byte {
	t.Helper()
	data, err := cmd.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func TestApplyBookCommitsReservation(t *testing.T) {
	l := NewLedger(nil)
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	cmd := &Command{Op: OpBook, Room: "101", Start: start, End: end, Requester: "alice"}
	result, err := l.Apply(1, encodeT(t, cmd))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	b := result.(*Booking)
	if b.ID != "bk-00000000000000000001" {
		t.Errorf("expected index-derived id, got %s", b.ID)
	}

	active := l.ActiveBookings("101")
	if len(active) != 1 || active[0].Requester != "alice" {
		t.Errorf("expected one active booking for alice, got %+v", active)
	}
}

func TestApplyBookRejectsOverlap(t *testing.T) {
	l := NewLedger(nil)
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	first := &Command{Op: OpBook, Room: "101", Start: start, End: end, Requester: "alice"}
	if _, err := l.Apply(1, encodeT(t, first)); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	overlapping := &Command{Op: OpBook, Room: "101", Start: start.Add(30 * time.Minute), End: end.Add(30 * time.Minute), Requester: "bob"}
	if _, err := l.Apply(2, encodeT(t, overlapping)); err == nil {
		t.Fatal("expected overlap rejection, got nil error")
	}

	if len(l.ActiveBookings("101")) != 1 {
		t.Errorf("rejected command must not mutate the ledger")
	}
}

func TestApplyBookAllowsAdjacentWindows(t *testing.T) {
	l := NewLedger(nil)
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	mid := start.Add(time.Hour)
	end := mid.Add(time.Hour)

	first := &Command{Op: OpBook, Room: "101", Start: start, End: mid, Requester: "alice"}
	second := &Command{Op: OpBook, Room: "101", Start: mid, End: end, Requester: "bob"}

	if _, err := l.Apply(1, encodeT(t, first)); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := l.Apply(2, encodeT(t, second)); err != nil {
		t.Fatalf("adjacent window should not conflict: %v", err)
	}
}

func TestApplyCancelFreesTheWindow(t *testing.T) {
	l := NewLedger(nil)
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	book := &Command{Op: OpBook, Room: "101", Start: start, End: end, Requester: "alice"}
	res, err := l.Apply(1, encodeT(t, book))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	id := res.(*Booking).ID

	cancel := &Command{Op: OpCancel, BookingID: id}
	if _, err := l.Apply(2, encodeT(t, cancel)); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if len(l.ActiveBookings("101")) != 0 {
		t.Error("canceled booking must not be active")
	}

	rebook := &Command{Op: OpBook, Room: "101", Start: start, End: end, Requester: "bob"}
	if _, err := l.Apply(3, encodeT(t, rebook)); err != nil {
		t.Errorf("freed window should accept a new booking: %v", err)
	}
}

func TestApplyCancelUnknownBookingFails(t *testing.T) {
	l := NewLedger(nil)
	cmd := &Command{Op: OpCancel, BookingID: "does-not-exist"}
	if _, err := l.Apply(1, encodeT(t, cmd)); err == nil {
		t.Fatal("expected error for unknown booking id")
	}
}

func TestApplyIsDeterministicAcrossReplicas(t *testing.T) {
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	cmd := &Command{Op: OpBook, Room: "101", Start: start, End: start.Add(time.Hour), Requester: "alice"}
	data := encodeT(t, cmd)

	a := NewLedger(nil)
	b := NewLedger(nil)

	resA, errA := a.Apply(5, data)
	resB, errB := b.Apply(5, data)
	if errA != nil || errB != nil {
		t.Fatalf("apply errors: %v %v", errA, errB)
	}
	if resA.(*Booking).ID != resB.(*Booking).ID {
		t.Errorf("two ledgers replaying the same (index, command) diverged: %s vs %s",
			resA.(*Booking).ID, resB.(*Booking).ID)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := NewLedger(nil)
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	cmd := &Command{Op: OpBook, Room: "101", Start: start, End: start.Add(time.Hour), Requester: "alice"}
	if _, err := l.Apply(1, encodeT(t, cmd)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	snap, err := l.CreateSnapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	restored := NewLedger(nil)
	if err := restored.RestoreSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if len(restored.ActiveBookings("101")) != 1 {
		t.Errorf("restored ledger missing booking")
	}
}

func TestCommandValidation(t *testing.T) {
	cases := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{"valid book", Command{Op: OpBook, Room: "1", Requester: "a", Start: time.Unix(0, 0), End: time.Unix(100, 0)}, false},
		{"missing room", Command{Op: OpBook, Requester: "a", Start: time.Unix(0, 0), End: time.Unix(100, 0)}, true},
		{"missing requester", Command{Op: OpBook, Room: "1", Start: time.Unix(0, 0), End: time.Unix(100, 0)}, true},
		{"start after end", Command{Op: OpBook, Room: "1", Requester: "a", Start: time.Unix(100, 0), End: time.Unix(0, 0)}, true},
		{"valid cancel", Command{Op: OpCancel, BookingID: "x"}, false},
		{"missing booking id", Command{Op: OpCancel}, true},
		{"unknown op", Command{Op: "frobnicate"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
