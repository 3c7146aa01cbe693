package node

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/store"
)

// GenesisFixture is the YAML shape a bootstrap fixture file takes
// (SPEC_FULL.md Configuration: "genesis / bootstrap fixture loading").
// It seeds a fresh store with its height-0 block and a handful of
// initial account balances, and lists the validator set a fresh node
// should trust (returned by ApplyGenesis, not written to the store)
// (the teacher's devnet/testnet fixtures play the same role for
// core/network.go's bootstrap path).
type GenesisFixture struct {
	NetworkName string            `yaml:"network_name"`
	Validators  []string          `yaml:"validators"`  // hex-encoded public keys
	Accounts    []GenesisAccount  `yaml:"accounts"`
	Timestamp   int64             `yaml:"timestamp"`
}

type GenesisAccount struct {
	ID     string            `yaml:"id"`
	Assets map[string]string `yaml:"assets"` // asset key -> hex-encoded value
}

// LoadGenesisFixture reads and parses a YAML genesis fixture from path.
func LoadGenesisFixture(path string) (*GenesisFixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("node: read genesis fixture: %w", err)
	}
	var g GenesisFixture
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("node: parse genesis fixture: %w", err)
	}
	return &g, nil
}

// ApplyGenesis seeds st with fx's accounts and a signed-sentinel height-0
// block (spec §3: "Genesis (height 0) has validator = none and a fixed
// five-byte sentinel signature"), plus the on-chain blockchain:settings
// config entry spec §6 names. It is a no-op if st already has a block at
// height 0.
func ApplyGenesis(st store.Store, fx GenesisFixture) ([]chain.PublicKey, error) {
	if _, ok := st.Block(0); ok {
		return decodeValidators(fx.Validators)
	}

	f := st.Fork()
	for _, a := range fx.Accounts {
		acc := chain.Account{ID: a.ID}
		for key, hx := range a.Assets {
			val, err := hex.DecodeString(hx)
			if err != nil {
				return nil, fmt.Errorf("node: genesis account %s asset %s: %w", a.ID, key, err)
			}
			acc.SetAsset(key, val)
		}
		f.PutAccount(acc)
	}

	data := chain.BlockData{
		Height:    0,
		StateHash: f.StateHash(""),
		Timestamp: fx.Timestamp,
	}
	block := chain.Block{Data: data, Signature: chain.GenesisSignature}
	f.PutBlock(block)
	f.PutTxsHashes(0, nil)
	f.PutRxsHashes(0, nil)

	settingsBytes, err := codec.Encode(&blockchainSettingsCodec{store.BlockchainSettings{NetworkName: fx.NetworkName}})
	if err != nil {
		return nil, fmt.Errorf("node: encode blockchain settings: %w", err)
	}
	f.PutConfig(store.BlockchainSettingsKey, settingsBytes)

	if err := f.Merge(); err != nil {
		return nil, fmt.Errorf("node: merge genesis fork: %w", err)
	}
	return decodeValidators(fx.Validators)
}

func decodeValidators(hexKeys []string) ([]chain.PublicKey, error) {
	out := make([]chain.PublicKey, 0, len(hexKeys))
	for _, hx := range hexKeys {
		b, err := hex.DecodeString(hx)
		if err != nil {
			return nil, fmt.Errorf("node: genesis validator %q: %w", hx, err)
		}
		out = append(out, chain.PublicKey(b))
	}
	return out, nil
}

// blockchainSettingsCodec adapts store.BlockchainSettings (a plain struct
// with no canonical codec of its own, since spec §6 pins only its logical
// shape) to the module's canonical-encoding convention used everywhere
// else config-space values round-trip through the store.
type blockchainSettingsCodec struct {
	store.BlockchainSettings
}

func (s *blockchainSettingsCodec) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(1)
	w.String(s.NetworkName)
	return nil
}

func (s *blockchainSettingsCodec) UnmarshalCanonical(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("node: blockchain settings: want 1 field")
	}
	if s.NetworkName, err = r.String(); err != nil {
		return err
	}
	return nil
}

// CheckNetworkName cross-checks the on-chain blockchain:settings entry
// against the locally configured network name (SPEC_FULL.md
// Configuration: "cross-checked against the local network_name").
func CheckNetworkName(st store.Store, localName string) error {
	raw, ok := st.Config(store.BlockchainSettingsKey)
	if !ok {
		return nil
	}
	var s blockchainSettingsCodec
	if err := codec.Decode(raw, &s); err != nil {
		return fmt.Errorf("node: decode blockchain settings: %w", err)
	}
	if s.NetworkName != localName {
		return fmt.Errorf("node: network name mismatch: local=%q on-chain=%q", localName, s.NetworkName)
	}
	return nil
}
