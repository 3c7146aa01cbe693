package chain

import "trinci-core/codec"

// Event is one contract event (spec §3 Receipt.events entry).
type Event struct {
	EventTx        codec.Hash // set by the executor to the producing tx's data hash
	EmitterAccount string
	EventName      string
	EventData      []byte
}

func (e *Event) marshal(w *codec.Writer) error {
	w.ArrayHeader(4)
	w.Bytes([]byte(e.EventTx))
	w.String(e.EmitterAccount)
	w.String(e.EventName)
	w.Bytes(e.EventData)
	return nil
}

func (e *Event) unmarshal(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 4 {
		return malformed("event: want 4 fields")
	}
	var b []byte
	if b, err = r.Bytes(); err != nil {
		return err
	}
	e.EventTx = codec.Hash(b)
	if e.EmitterAccount, err = r.String(); err != nil {
		return err
	}
	if e.EventName, err = r.String(); err != nil {
		return err
	}
	if e.EventData, err = r.Bytes(); err != nil {
		return err
	}
	return nil
}

// Receipt is spec §3's Receipt: {height, index, burned_fuel, success,
// returns, events?}.
type Receipt struct {
	Height     uint64
	Index      uint64
	BurnedFuel uint64
	Success    bool
	Returns    []byte
	Events     []Event
}

func (rx *Receipt) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(6)
	w.Uint64(rx.Height)
	w.Uint64(rx.Index)
	w.Uint64(rx.BurnedFuel)
	w.Bool(rx.Success)
	w.Bytes(rx.Returns)
	hasEvents := rx.Events != nil
	if !hasEvents {
		w.Nil()
		return nil
	}
	w.ArrayHeader(len(rx.Events))
	for i := range rx.Events {
		if err := rx.Events[i].marshal(w); err != nil {
			return err
		}
	}
	return nil
}

func (rx *Receipt) UnmarshalCanonical(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 6 {
		return malformed("receipt: want 6 fields")
	}
	if rx.Height, err = r.Uint64(); err != nil {
		return err
	}
	if rx.Index, err = r.Uint64(); err != nil {
		return err
	}
	if rx.BurnedFuel, err = r.Uint64(); err != nil {
		return err
	}
	if rx.Success, err = r.Bool(); err != nil {
		return err
	}
	if rx.Returns, err = r.Bytes(); err != nil {
		return err
	}
	nilv, err := r.IsNil()
	if err != nil {
		return err
	}
	if nilv {
		rx.Events = nil
		return nil
	}
	cnt, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	rx.Events = make([]Event, cnt)
	for i := 0; i < cnt; i++ {
		if err := rx.Events[i].unmarshal(r); err != nil {
			return err
		}
	}
	return nil
}
