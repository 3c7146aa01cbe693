package contracthost

import "testing"

func TestDefaultFuelPolicyZeroConsumed(t *testing.T) {
	if got := DefaultFuelPolicy(0, 1000); got != 0 {
		t.Fatalf("expected zero wasm fuel to translate to zero, got %d", got)
	}
}

func TestDefaultFuelPolicyNonZeroConsumed(t *testing.T) {
	if got := DefaultFuelPolicy(1, 1000); got != 1000 {
		t.Fatalf("expected any non-zero wasm fuel to charge the full fuel_limit, got %d", got)
	}
	if got := DefaultFuelPolicy(999999, 42); got != 42 {
		t.Fatalf("expected the charge to equal fuel_limit regardless of magnitude, got %d", got)
	}
}

func TestEstimateFuelScalesWithArgSize(t *testing.T) {
	if got := estimateFuel(nil); got != 1 {
		t.Fatalf("expected empty args to cost 1, got %d", got)
	}
	if got := estimateFuel([]byte("hello")); got != 6 {
		t.Fatalf("expected a 5-byte arg to cost 6, got %d", got)
	}
}

func TestEncodeI32ResultLittleEndian(t *testing.T) {
	got := encodeI32Result(int32(1))
	want := []byte{1, 0, 0, 0}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] || got[3] != want[3] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEncodeI32ResultRejectsNonInt32(t *testing.T) {
	if got := encodeI32Result("not an int32"); got != nil {
		t.Fatalf("expected a non-int32 value to encode as nil, got %v", got)
	}
}
