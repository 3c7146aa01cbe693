package chain

import "trinci-core/codec"

// PublicKey is an opaque caller identity (spec §3 V1.caller): whatever
// bytes the configured signature scheme uses to identify a signer. The
// data model never interprets these bytes itself — only Sign/Verify do.
type PublicKey []byte

// Account mirrors spec §3 Account: {id, assets, contract?, data_hash?}.
// The ordering of Assets is lexicographic by key and is part of the
// canonical encoding, so state hashes are reproducible across nodes.
type Account struct {
	ID       string
	Assets   []AssetEntry // must be kept sorted by Key; see SetAsset
	Contract []byte       // optional: contract code hash, nil if none
	DataHash []byte       // optional
}

// AssetEntry is one entry of Account.Assets' ordered map.
type AssetEntry struct {
	Key   string
	Value []byte
}

// SetAsset inserts or replaces an asset, keeping Assets sorted by key.
func (a *Account) SetAsset(key string, value []byte) {
	for i := range a.Assets {
		if a.Assets[i].Key == key {
			a.Assets[i].Value = value
			return
		}
		if a.Assets[i].Key > key {
			a.Assets = append(a.Assets, AssetEntry{})
			copy(a.Assets[i+1:], a.Assets[i:])
			a.Assets[i] = AssetEntry{Key: key, Value: value}
			return
		}
	}
	a.Assets = append(a.Assets, AssetEntry{Key: key, Value: value})
}

func (a *Account) Asset(key string) ([]byte, bool) {
	for _, e := range a.Assets {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func (a *Account) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(4)
	w.String(a.ID)
	w.ArrayHeader(len(a.Assets))
	for _, e := range a.Assets {
		w.ArrayHeader(2)
		w.String(e.Key)
		w.Bytes(e.Value)
	}
	w.OptBytes(a.Contract, a.Contract != nil)
	w.OptBytes(a.DataHash, a.DataHash != nil)
	return nil
}

func (a *Account) UnmarshalCanonical(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 4 {
		return malformed("account: want 4 fields")
	}
	if a.ID, err = r.String(); err != nil {
		return err
	}
	cnt, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	a.Assets = make([]AssetEntry, cnt)
	for i := 0; i < cnt; i++ {
		if m, err := r.ArrayHeader(); err != nil || m != 2 {
			return malformed("account asset entry: want 2 fields")
		}
		if a.Assets[i].Key, err = r.String(); err != nil {
			return err
		}
		if a.Assets[i].Value, err = r.Bytes(); err != nil {
			return err
		}
	}
	if !isSortedAssets(a.Assets) {
		return malformed("account assets not lexicographically ordered")
	}
	if a.Contract, _, err = r.OptBytes(); err != nil {
		return err
	}
	if a.DataHash, _, err = r.OptBytes(); err != nil {
		return err
	}
	return nil
}

func isSortedAssets(a []AssetEntry) bool {
	for i := 1; i < len(a); i++ {
		if a[i-1].Key >= a[i].Key {
			return false
		}
	}
	return true
}
