package chain

import "trinci-core/errs"

// CheckIntegrity validates the structural invariants of spec §3 beyond
// signature verification: non-empty required fields for Unit, and for
// Bulk the network/dependency coherence across root and nodes.
func (t *Transaction) CheckIntegrity() error {
	switch t.Kind {
	case KindUnit:
		return checkUnitIntegrity(t.Data.V1)
	case KindBulk:
		return checkBulkIntegrity(t.Data.BulkV1)
	default:
		return malformed("check integrity: unknown tx kind")
	}
}

// checkUnitIntegrity is also used for a BulkV1's root when it is a
// BulkRootV1 (same shape, same rule set — see SPEC_FULL.md's resolution
// of the BulkRootV1 signing/verification open question) and for each
// BulkNodeV1 node.
func checkUnitIntegrity(v *V1Data) error {
	if v.Schema == "" {
		return brokenIntegrity("empty schema")
	}
	if v.Account == "" {
		return brokenIntegrity("empty account")
	}
	if v.Nonce == 0 {
		return brokenIntegrity("empty nonce")
	}
	if v.Network == "" {
		return brokenIntegrity("empty network")
	}
	if v.Method == "" {
		return brokenIntegrity("empty method")
	}
	return nil
}

// checkBulkIntegrity implements spec §3's Bulk invariants: every node's
// network must equal the root's, and every node's depends_on must equal
// hash(root.data); nodes must be BulkNodeV1 (already enforced by the
// decoder's variant tagging — SignedTxNode.Data is typed BulkNodeV1Data,
// so nested bulks cannot appear here at all).
func checkBulkIntegrity(b *BulkV1Data) error {
	var rootNetwork string
	var rootData TxData
	if b.Root.IsEmpty {
		rootNetwork = b.Root.EmptyRoot.Network
		rootData = TxData{Kind: KindBulkEmptyRoot, BulkEmptyRoot: b.Root.EmptyRoot}
	} else {
		if err := checkUnitIntegrity(b.Root.RootV1); err != nil {
			return err
		}
		rootNetwork = b.Root.RootV1.Network
		rootData = TxData{Kind: KindBulkRootV1, BulkRootV1: b.Root.RootV1}
	}
	rootHash, err := dataHash(&rootData)
	if err != nil {
		return err
	}
	for i := range b.Nodes {
		node := &b.Nodes[i].Data
		if err := checkUnitIntegrity(&node.V1Data); err != nil {
			return err
		}
		if node.V1Data.Network != rootNetwork {
			return brokenIntegrity("incoherent network")
		}
		if node.DependsOn != rootHash {
			return brokenIntegrity("incoherent dependency")
		}
	}
	return nil
}

// CheckNetwork enforces spec §3's "a Bulk's network must equal every
// node's network" plus the Dispatcher-level "network must equal the
// node's configured network" (spec §4.3), given the node's own
// configured network name.
func (t *Transaction) CheckNetwork(nodeNetwork string) error {
	view := t.View()
	if view.Network() != nodeNetwork {
		return errs.New(errs.BadNetwork, "transaction network does not match node network")
	}
	if t.Kind == KindBulk {
		for i := range t.Data.BulkV1.Nodes {
			if t.Data.BulkV1.Nodes[i].Data.V1Data.Network != nodeNetwork {
				return errs.New(errs.BadNetwork, "bulk node network does not match node network")
			}
		}
	}
	return nil
}
