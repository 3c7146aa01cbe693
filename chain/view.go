package chain

// TxView is the small capability interface spec §9 calls for in place
// of repeated pattern matches on the transaction variant: "a small
// capability interface (caller, network, account, method, args,
// contract, dependency?, fuel_limit) implemented once per variant".
//
// For a BulkTransaction, View() describes the bulk's root step — this
// is what the Dispatcher and Pool need (sender identity, network,
// nonce-bearing account) without caring about the node list.
type TxView interface {
	Caller() PublicKey
	Network() string
	Account() string
	Method() string
	Args() []byte
	Contract() []byte
	DependsOn() (string, bool)
	FuelLimit() uint64
	Nonce() uint64
}

// View returns the capability view for the transaction's logical root.
func (t *Transaction) View() TxView {
	switch t.Kind {
	case KindUnit:
		return v1View{t.Data.V1}
	case KindBulk:
		root := t.Data.BulkV1.Root
		if root.IsEmpty {
			return emptyRootView{root.EmptyRoot}
		}
		return v1View{root.RootV1}
	default:
		return v1View{&V1Data{}}
	}
}

// NodeView returns the capability view of one node in a bulk transaction.
func NodeView(n *BulkNodeV1Data) TxView { return nodeView{n} }

// NodeViewRoot returns the capability view of a bulk's BulkRootV1 root
// step, used by the executor's per-sub-tx loop (chain.Transaction.View
// already covers the whole-transaction case; this covers the bare
// V1Data the executor extracts from BulkV1Data.Root).
func NodeViewRoot(v *V1Data) TxView { return v1View{v} }

type v1View struct{ d *V1Data }

func (v v1View) Caller() PublicKey       { return v.d.Caller }
func (v v1View) Network() string         { return v.d.Network }
func (v v1View) Account() string         { return v.d.Account }
func (v v1View) Method() string          { return v.d.Method }
func (v v1View) Args() []byte            { return v.d.Args }
func (v v1View) Contract() []byte        { return v.d.Contract }
func (v v1View) DependsOn() (string, bool) { return "", false }
func (v v1View) FuelLimit() uint64       { return v.d.FuelLimit }
func (v v1View) Nonce() uint64           { return v.d.Nonce }

type emptyRootView struct{ d *BulkEmptyRootData }

func (v emptyRootView) Caller() PublicKey       { return v.d.Caller }
func (v emptyRootView) Network() string         { return v.d.Network }
func (v emptyRootView) Account() string         { return "" }
func (v emptyRootView) Method() string          { return "" }
func (v emptyRootView) Args() []byte            { return nil }
func (v emptyRootView) Contract() []byte        { return nil }
func (v emptyRootView) DependsOn() (string, bool) { return "", false }
func (v emptyRootView) FuelLimit() uint64       { return v.d.FuelLimit }
func (v emptyRootView) Nonce() uint64           { return v.d.Nonce }

type nodeView struct{ d *BulkNodeV1Data }

func (v nodeView) Caller() PublicKey       { return v.d.Caller }
func (v nodeView) Network() string         { return v.d.Network }
func (v nodeView) Account() string         { return v.d.Account }
func (v nodeView) Method() string          { return v.d.Method }
func (v nodeView) Args() []byte            { return v.d.Args }
func (v nodeView) Contract() []byte        { return v.d.Contract }
func (v nodeView) DependsOn() (string, bool) { return string(v.d.DependsOn), true }
func (v nodeView) FuelLimit() uint64       { return v.d.FuelLimit }
func (v nodeView) Nonce() uint64           { return v.d.Nonce }
