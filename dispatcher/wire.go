package dispatcher

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// wireTag identifies a Message variant on the p2p unicast wire (spec
// §4.4's get-block-request/get-transaction-request and their
// responses). Unlike codec.Marshaler, determinism doesn't matter for
// these transport-only RPC messages, so this uses the same
// vmihailenco/msgpack library reflectively rather than the canonical
// positional writer.
type wireTag byte

const (
	tagPutTransactionRequest wireTag = iota + 1
	tagPutTransactionResponse
	tagGetTransactionRequest
	tagGetTransactionResponse
	tagGetReceiptRequest
	tagGetReceiptResponse
	tagGetBlockRequest
	tagGetBlockResponse
	tagGetAccountRequest
	tagGetAccountResponse
	tagGetCoreStatsRequest
	tagGetCoreStatsResponse
	tagGetNetworkIdRequest
	tagGetNetworkIdResponse
	tagGetSeedRequest
	tagGetSeedResponse
	tagGetP2pIdRequest
	tagGetP2pIdResponse
	tagSubscribe
	tagUnsubscribe
	tagExecReadOnlyTransaction
	tagPacked
	tagException
)

func tagFor(m Message) (wireTag, bool) {
	switch m.(type) {
	case PutTransactionRequest:
		return tagPutTransactionRequest, true
	case PutTransactionResponse:
		return tagPutTransactionResponse, true
	case GetTransactionRequest:
		return tagGetTransactionRequest, true
	case GetTransactionResponse:
		return tagGetTransactionResponse, true
	case GetReceiptRequest:
		return tagGetReceiptRequest, true
	case GetReceiptResponse:
		return tagGetReceiptResponse, true
	case GetBlockRequest:
		return tagGetBlockRequest, true
	case GetBlockResponse:
		return tagGetBlockResponse, true
	case GetAccountRequest:
		return tagGetAccountRequest, true
	case GetAccountResponse:
		return tagGetAccountResponse, true
	case GetCoreStatsRequest:
		return tagGetCoreStatsRequest, true
	case GetCoreStatsResponse:
		return tagGetCoreStatsResponse, true
	case GetNetworkIdRequest:
		return tagGetNetworkIdRequest, true
	case GetNetworkIdResponse:
		return tagGetNetworkIdResponse, true
	case GetSeedRequest:
		return tagGetSeedRequest, true
	case GetSeedResponse:
		return tagGetSeedResponse, true
	case GetP2pIdRequest:
		return tagGetP2pIdRequest, true
	case GetP2pIdResponse:
		return tagGetP2pIdResponse, true
	case Subscribe:
		return tagSubscribe, true
	case Unsubscribe:
		return tagUnsubscribe, true
	case ExecReadOnlyTransaction:
		return tagExecReadOnlyTransaction, true
	case Packed:
		return tagPacked, true
	case Exception:
		return tagException, true
	default:
		return 0, false
	}
}

type wireEnvelope struct {
	Tag  wireTag
	Body []byte
}

// EncodeMessage renders m for the p2p unicast wire.
func EncodeMessage(m Message) ([]byte, error) {
	tag, ok := tagFor(m)
	if !ok {
		return nil, fmt.Errorf("dispatcher: cannot encode message of type %T", m)
	}
	var body []byte
	var err error
	if p, ok := m.(Packed); ok {
		body, err = encodePackedBody(p)
	} else {
		body, err = msgpack.Marshal(m)
	}
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&wireEnvelope{Tag: tag, Body: body})
}

func encodePackedBody(p Packed) ([]byte, error) {
	parts := make([][]byte, len(p.Messages))
	for i, inner := range p.Messages {
		b, err := EncodeMessage(inner)
		if err != nil {
			return nil, err
		}
		parts[i] = b
	}
	return msgpack.Marshal(parts)
}

// DecodeMessage is EncodeMessage's inverse.
func DecodeMessage(data []byte) (Message, error) {
	var env wireEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Tag {
	case tagPutTransactionRequest:
		var m PutTransactionRequest
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagPutTransactionResponse:
		var m PutTransactionResponse
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetTransactionRequest:
		var m GetTransactionRequest
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetTransactionResponse:
		var m GetTransactionResponse
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetReceiptRequest:
		var m GetReceiptRequest
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetReceiptResponse:
		var m GetReceiptResponse
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetBlockRequest:
		var m GetBlockRequest
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetBlockResponse:
		var m GetBlockResponse
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetAccountRequest:
		var m GetAccountRequest
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetAccountResponse:
		var m GetAccountResponse
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetCoreStatsRequest:
		var m GetCoreStatsRequest
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetCoreStatsResponse:
		var m GetCoreStatsResponse
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetNetworkIdRequest:
		var m GetNetworkIdRequest
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetNetworkIdResponse:
		var m GetNetworkIdResponse
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetSeedRequest:
		var m GetSeedRequest
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetSeedResponse:
		var m GetSeedResponse
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetP2pIdRequest:
		var m GetP2pIdRequest
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagGetP2pIdResponse:
		var m GetP2pIdResponse
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagSubscribe:
		var m Subscribe
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagUnsubscribe:
		var m Unsubscribe
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagExecReadOnlyTransaction:
		var m ExecReadOnlyTransaction
		return m, msgpack.Unmarshal(env.Body, &m)
	case tagPacked:
		var parts [][]byte
		if err := msgpack.Unmarshal(env.Body, &parts); err != nil {
			return nil, err
		}
		msgs := make([]Message, len(parts))
		for i, raw := range parts {
			inner, err := DecodeMessage(raw)
			if err != nil {
				return nil, err
			}
			msgs[i] = inner
		}
		return Packed{Messages: msgs}, nil
	case tagException:
		var m Exception
		return m, msgpack.Unmarshal(env.Body, &m)
	default:
		return nil, fmt.Errorf("dispatcher: unknown wire tag %d", env.Tag)
	}
}
