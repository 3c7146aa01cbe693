package chain

import (
	"testing"

	"trinci-core/codec"
)

func TestAccountRoundTrip(t *testing.T) {
	a := Account{ID: "acct-1"}
	a.SetAsset("zeta", []byte("z"))
	a.SetAsset("alpha", []byte("a"))
	a.SetAsset("mid", []byte("m"))
	a.Contract = []byte("contract-hash")
	a.DataHash = []byte("data-hash")

	enc, err := codec.Encode(&a)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var out Account
	if err := codec.Decode(enc, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.ID != a.ID || len(out.Assets) != 3 {
		t.Fatalf("round-trip mismatch: %+v", out)
	}
	if out.Assets[0].Key != "alpha" || out.Assets[1].Key != "mid" || out.Assets[2].Key != "zeta" {
		t.Fatalf("assets not kept in sorted order: %+v", out.Assets)
	}
}

func TestSetAssetReplacesExisting(t *testing.T) {
	a := Account{ID: "acct-1"}
	a.SetAsset("key", []byte("v1"))
	a.SetAsset("key", []byte("v2"))

	if len(a.Assets) != 1 {
		t.Fatalf("expected a single asset entry, got %d", len(a.Assets))
	}
	v, ok := a.Asset("key")
	if !ok || string(v) != "v2" {
		t.Fatalf("expected replaced value v2, got %q ok=%v", v, ok)
	}
}

func TestAssetMissingKey(t *testing.T) {
	a := Account{ID: "acct-1"}
	if _, ok := a.Asset("missing"); ok {
		t.Fatalf("expected missing key to report ok=false")
	}
}

func TestAccountDecodeRejectsUnsortedAssets(t *testing.T) {
	a := Account{ID: "acct-1", Assets: []AssetEntry{{Key: "zeta", Value: []byte("1")}, {Key: "alpha", Value: []byte("2")}}}
	enc, err := codec.Encode(&a)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var out Account
	if err := codec.Decode(enc, &out); err == nil {
		t.Fatalf("expected Decode to reject unsorted assets")
	}
}
