package chain

import (
	"testing"

	"trinci-core/codec"
)

func TestReceiptRoundTripWithEvents(t *testing.T) {
	rx := Receipt{
		Height:     11,
		Index:      2,
		BurnedFuel: 50,
		Success:    true,
		Returns:    []byte("OpaqueData"),
		Events: []Event{
			{EventTx: codec.HashBytes([]byte("tx")), EmitterAccount: "acct-1", EventName: "minted", EventData: []byte("1")},
		},
	}
	enc, err := codec.Encode(&rx)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var out Receipt
	if err := codec.Decode(enc, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Height != rx.Height || out.Index != rx.Index || !out.Success {
		t.Fatalf("round-trip mismatch: %+v", out)
	}
	if len(out.Events) != 1 || out.Events[0].EventName != "minted" {
		t.Fatalf("events did not survive round-trip: %+v", out.Events)
	}
}

func TestReceiptRoundTripNoEvents(t *testing.T) {
	rx := Receipt{Height: 1, Index: 0, Success: false, Returns: []byte("SmartContractFault: boom")}
	enc, err := codec.Encode(&rx)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var out Receipt
	if err := codec.Decode(enc, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Events != nil {
		t.Fatalf("expected nil events to round-trip as nil, got %+v", out.Events)
	}
	if out.Success {
		t.Fatalf("expected Success=false to round-trip")
	}
}
