// Package p2p is the node-to-node wire transport: libp2p gossip for the
// TRANSACTION/BLOCK topics and libp2p stream unicast for the
// GOSSIP_REQUEST/UNICAST_REQUEST exchanges the Aligner drives (spec §6
// Topics, §4.4 Aligner). Grounded on the teacher's core/network.go
// (libp2p host + go-libp2p-pubsub + mDNS discovery), generalized from a
// single flat Node type into the Peer interface. Dispatcher and Aligner
// do not import this package; they consume their own narrower interfaces
// (dispatcher.Gossip, aligner.PeerClient).
package p2p

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	gossip "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// TopicTransaction/TopicBlock are the libp2p gossipsub topic strings
	// backing spec §6's TRANSACTION and BLOCK PubSub topics.
	TopicTransaction = "trinci/tx/v1"
	TopicBlock       = "trinci/block/v1"

	unicastProtocol = protocol.ID("/trinci/unicast/1.0.0")

	// requestRate caps inbound unicast requests per remote peer, guarding
	// against a flood of GetBlockRequest/GetTransactionRequest spam
	// during alignment (SPEC_FULL.md p2p expansion).
	requestRate  = 20
	requestBurst = 40
)

// Config is a node's p2p bootstrap configuration (grounded on the
// teacher's Config.Network block in pkg/config).
type Config struct {
	ListenAddr     string
	DiscoveryTag   string
	BootstrapPeers []string
}

// RequestHandler answers a unicast request frame with a response frame
// (Dispatcher implements this for GetBlockRequest/GetTransactionRequest
// and the Aligner's get-block/get-transaction requests, spec §4.3/§4.4).
type RequestHandler func(ctx context.Context, from peer.ID, req []byte) ([]byte, error)

// Peer is the full transport surface Host offers: gossip
// publish/subscribe plus point-to-point unicast request/response.
type Peer interface {
	ID() string
	GossipTransaction(ctx context.Context, data []byte) error
	GossipBlock(ctx context.Context, data []byte) error
	Subscribe(topic string) (<-chan GossipMessage, error)
	Peers() []string
	Unicast(ctx context.Context, to string, req []byte) ([]byte, error)
	Broadcast(ctx context.Context, req []byte) <-chan UnicastReply
	SetRequestHandler(h RequestHandler)
	Close() error
}

// GossipMessage is one delivered pubsub message.
type GossipMessage struct {
	From string
	Data []byte
}

// UnicastReply pairs a responding peer's id with its response (or error).
type UnicastReply struct {
	From string
	Data []byte
	Err  error
}

// Host is the default Peer, backed by a live libp2p host (spec §1's p2p
// transport is an external collaborator; this is the node's default
// wiring of it).
type Host struct {
	h      host.Host
	ps     *gossip.PubSub
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry

	topicMu sync.Mutex
	topics  map[string]*gossip.Topic

	limiterMu sync.Mutex
	limiters  map[peer.ID]*rate.Limiter

	handlerMu sync.RWMutex
	handler   RequestHandler
}

// New bootstraps a libp2p host, gossipsub router, and mDNS discovery
// (grounded on core/network.go's NewNode).
func New(ctx context.Context, cfg Config, log *logrus.Entry) (*Host, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	nctx, cancel := context.WithCancel(ctx)

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("p2p: create host: %w", err)
	}

	ps, err := gossip.NewGossipSub(nctx, h)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("p2p: create gossipsub: %w", err)
	}

	p := &Host{
		h:        h,
		ps:       ps,
		ctx:      nctx,
		cancel:   cancel,
		log:      log.WithField("component", "p2p"),
		topics:   make(map[string]*gossip.Topic),
		limiters: make(map[peer.ID]*rate.Limiter),
	}

	h.SetStreamHandler(unicastProtocol, p.handleStream)

	for _, addr := range cfg.BootstrapPeers {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			p.log.Warnf("invalid bootstrap address %s: %v", addr, err)
			continue
		}
		if err := h.Connect(nctx, *pi); err != nil {
			p.log.Warnf("bootstrap dial %s failed: %v", addr, err)
		}
	}

	mdns.NewMdnsService(h, cfg.DiscoveryTag, p)

	return p, nil
}

// HandlePeerFound implements mdns.Notifee: dial a peer discovered on the
// local network (grounded on core/network.go's HandlePeerFound).
func (p *Host) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == p.h.ID() {
		return
	}
	if err := p.h.Connect(p.ctx, info); err != nil {
		p.log.Warnf("mdns connect to %s failed: %v", info.ID, err)
	}
}

func (p *Host) ID() string { return p.h.ID().String() }

func (p *Host) SetRequestHandler(h RequestHandler) {
	p.handlerMu.Lock()
	p.handler = h
	p.handlerMu.Unlock()
}

func (p *Host) topic(name string) (*gossip.Topic, error) {
	p.topicMu.Lock()
	defer p.topicMu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t, nil
	}
	t, err := p.ps.Join(name)
	if err != nil {
		return nil, err
	}
	p.topics[name] = t
	return t, nil
}

func (p *Host) GossipTransaction(ctx context.Context, data []byte) error {
	return p.publish(ctx, TopicTransaction, data)
}

func (p *Host) GossipBlock(ctx context.Context, data []byte) error {
	return p.publish(ctx, TopicBlock, data)
}

func (p *Host) publish(ctx context.Context, topicName string, data []byte) error {
	t, err := p.topic(topicName)
	if err != nil {
		return err
	}
	return t.Publish(ctx, data)
}

func (p *Host) Subscribe(topicName string) (<-chan GossipMessage, error) {
	t, err := p.topic(topicName)
	if err != nil {
		return nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, err
	}
	out := make(chan GossipMessage, 256)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(p.ctx)
			if err != nil {
				return
			}
			if msg.GetFrom() == p.h.ID() {
				continue
			}
			out <- GossipMessage{From: msg.GetFrom().String(), Data: msg.Data}
		}
	}()
	return out, nil
}

func (p *Host) Peers() []string {
	conns := p.h.Network().Peers()
	out := make([]string, len(conns))
	for i, id := range conns {
		out[i] = id.String()
	}
	return out
}

// Unicast implements the Aligner's "random peer" requests (spec §4.4
// steps 2/4/7): open one stream, write a length-prefixed request frame,
// read one length-prefixed response frame, close.
func (p *Host) Unicast(ctx context.Context, to string, req []byte) ([]byte, error) {
	pid, err := peer.Decode(to)
	if err != nil {
		return nil, fmt.Errorf("p2p: bad peer id %q: %w", to, err)
	}
	s, err := p.h.NewStream(ctx, pid, unicastProtocol)
	if err != nil {
		return nil, fmt.Errorf("p2p: open stream to %s: %w", to, err)
	}
	defer s.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(dl)
	}
	if err := writeFrame(s, req); err != nil {
		return nil, err
	}
	resp, err := readFrame(s)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Broadcast fans Unicast out to every currently connected peer
// (spec §4.4 step 2's "broadcasts a get-block-request"), collecting
// replies onto a channel closed once every peer has answered or the
// context is done.
func (p *Host) Broadcast(ctx context.Context, req []byte) <-chan UnicastReply {
	peers := p.Peers()
	out := make(chan UnicastReply, len(peers))
	var wg sync.WaitGroup
	for _, id := range peers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			data, err := p.Unicast(ctx, id, req)
			select {
			case out <- UnicastReply{From: id, Data: data, Err: err}:
			case <-ctx.Done():
			}
		}(id)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (p *Host) handleStream(s network.Stream) {
	defer s.Close()
	remote := s.Conn().RemotePeer()

	if !p.allow(remote) {
		p.log.Warnf("rate-limited unicast from %s", remote)
		return
	}

	req, err := readFrame(s)
	if err != nil {
		return
	}

	p.handlerMu.RLock()
	h := p.handler
	p.handlerMu.RUnlock()
	if h == nil {
		return
	}

	resp, err := h(p.ctx, remote, req)
	if err != nil {
		p.log.WithError(err).Debug("unicast handler error")
		return
	}
	_ = writeFrame(s, resp)
}

func (p *Host) allow(id peer.ID) bool {
	p.limiterMu.Lock()
	l, ok := p.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Limit(requestRate), requestBurst)
		p.limiters[id] = l
	}
	p.limiterMu.Unlock()
	return l.Allow()
}

func (p *Host) Close() error {
	p.cancel()
	return p.h.Close()
}

// writeFrame/readFrame implement a minimal length-prefixed framing over
// a raw libp2p stream (4-byte big-endian length, then the payload).
func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	n := len(data)
	lenBuf[0] = byte(n >> 24)
	lenBuf[1] = byte(n >> 16)
	lenBuf[2] = byte(n >> 8)
	lenBuf[3] = byte(n)
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// DiscoveryWindow is the fixed peer-discovery response window spec §4.4
// step 2 calls for (default 10s).
const DiscoveryWindow = 10 * time.Second
