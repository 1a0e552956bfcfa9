// Package p2p implements the gossip substrate on top of libp2p: an
// encrypted, multiplexed transport with local-network peer discovery and
// topic-based publish/subscribe. Host satisfies internal/node.Gossip.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emberchain/emberchain/internal/gossip"
	"github.com/emberchain/emberchain/internal/log"
	"github.com/emberchain/emberchain/internal/node"
	"github.com/emberchain/emberchain/internal/storage"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	yamux "github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/multiformats/go-multiaddr"
)

// seedDialTimeout bounds how long Start waits for any one persisted peer
// to answer before giving up on it.
const seedDialTimeout = 10 * time.Second

// rendezvousFallback is the default mDNS discovery namespace when no
// NetworkID is configured.
const rendezvousFallback = "emberchain"

// Config holds the settings needed to stand up a Host.
type Config struct {
	ListenAddr string     // e.g. "0.0.0.0" — spec.md §6 fixes this to 0.0.0.0.
	NetworkID  string     // isolates mDNS discovery per network when set.
	DataDir    string     // where the node's identity key is persisted.
	NoDiscover bool       // disables mDNS, for tests and isolated nodes.
	DB         storage.DB // peer-address cache; nil disables persistence.
}

// Host is a libp2p-backed implementation of internal/node.Gossip: it
// publishes and subscribes on the "chains"/"blocks" topics, discovers
// peers on the local network via mDNS, and surfaces both as a single
// ordered event stream.
type Host struct {
	host   host.Host
	pubsub *pubsub.PubSub
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	topicChains *pubsub.Topic
	topicBlocks *pubsub.Topic
	subChains   *pubsub.Subscription
	subBlocks   *pubsub.Subscription

	events chan node.Event

	mu        sync.RWMutex
	peers     map[peer.ID]*Peer
	peerStore *PeerStore
}

// New constructs a Host in an unstarted state.
func New(cfg Config) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[peer.ID]*Peer),
		events: make(chan node.Event, 64),
	}
	if cfg.DB != nil {
		h.peerStore = NewPeerStore(cfg.DB)
	}
	return h
}

// rendezvous returns the mDNS discovery namespace for this node.
func (h *Host) rendezvous() string {
	if h.cfg.NetworkID != "" {
		return "emberchain/" + h.cfg.NetworkID
	}
	return rendezvousFallback
}

// Start brings up the libp2p host: Noise security, Yamux multiplexing,
// GossipSub on "chains" and "blocks", and (unless disabled) mDNS
// discovery. The host listens on cfg.ListenAddr (0.0.0.0 in production)
// on an OS-assigned TCP port.
func (h *Host) Start() error {
	addr := fmt.Sprintf("/ip4/%s/tcp/0", h.cfg.ListenAddr)

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(addr),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
	}

	if h.cfg.DataDir != "" {
		priv, err := loadOrCreateIdentity(h.cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load p2p identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(priv))
	}

	lh, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	h.host = lh
	lh.Network().Notify(&connNotifier{host: h})

	ps, err := pubsub.NewGossipSub(h.ctx, lh)
	if err != nil {
		lh.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	h.pubsub = ps

	if err := h.joinTopics(); err != nil {
		lh.Close()
		return err
	}

	go h.readLoop(h.subChains)
	go h.readLoop(h.subBlocks)

	if !h.cfg.NoDiscover {
		h.startMDNS()
	}

	h.dialSeedPeers()

	log.P2P.Info().Str("peer_id", lh.ID().String()).Strs("addrs", h.Addrs()).Msg("p2p host started")
	return nil
}

// Stop tears down the libp2p host and its subscriptions.
func (h *Host) Stop() error {
	h.cancel()
	if h.subChains != nil {
		h.subChains.Cancel()
	}
	if h.subBlocks != nil {
		h.subBlocks.Cancel()
	}
	if h.host != nil {
		return h.host.Close()
	}
	return nil
}

// SelfID returns this node's peer id as a string, satisfying
// internal/node.Gossip.
func (h *Host) SelfID() string {
	if h.host == nil {
		return ""
	}
	return h.host.ID().String()
}

// Addrs returns the full dialable multiaddrs of this node.
func (h *Host) Addrs() []string {
	if h.host == nil {
		return nil
	}
	out := make([]string, 0, len(h.host.Addrs()))
	for _, a := range h.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, h.host.ID()))
	}
	return out
}

// Publish broadcasts data on topic, satisfying internal/node.Gossip.
func (h *Host) Publish(topic string, data []byte) error {
	var t *pubsub.Topic
	switch topic {
	case gossip.TopicChains:
		t = h.topicChains
	case gossip.TopicBlocks:
		t = h.topicBlocks
	default:
		return fmt.Errorf("p2p: unknown topic %q", topic)
	}
	if t == nil {
		return fmt.Errorf("p2p: host not started")
	}
	return t.Publish(h.ctx, data)
}

// Events returns the ordered stream of peer-discovery and inbound-message
// events, satisfying internal/node.Gossip.
func (h *Host) Events() <-chan node.Event {
	return h.events
}

// Peers returns the peer ids this host currently knows about, satisfying
// internal/node.Gossip. The node package deduplicates and sorts this.
func (h *Host) Peers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.peers))
	for id := range h.peers {
		out = append(out, id.String())
	}
	return out
}

func (h *Host) joinTopics() error {
	var err error
	h.topicChains, err = h.pubsub.Join(gossip.TopicChains)
	if err != nil {
		return fmt.Errorf("join %q topic: %w", gossip.TopicChains, err)
	}
	h.topicBlocks, err = h.pubsub.Join(gossip.TopicBlocks)
	if err != nil {
		return fmt.Errorf("join %q topic: %w", gossip.TopicBlocks, err)
	}
	h.subChains, err = h.topicChains.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", gossip.TopicChains, err)
	}
	h.subBlocks, err = h.topicBlocks.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", gossip.TopicBlocks, err)
	}
	return nil
}

func (h *Host) readLoop(sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(h.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == h.host.ID() {
			continue
		}
		h.addPeer(msg.ReceivedFrom, "gossip")
		select {
		case h.events <- node.Event{Kind: node.EventMessage, Topic: sub.Topic(), Data: msg.Data}:
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Host) startMDNS() {
	svc := mdns.NewMdnsService(h.host, h.rendezvous(), &discoveryNotifee{host: h})
	if err := svc.Start(); err != nil {
		log.P2P.Warn().Err(err).Msg("mdns discovery failed to start")
	}
}

func (h *Host) addPeer(id peer.ID, source string) {
	h.mu.Lock()
	_, exists := h.peers[id]
	if !exists {
		h.peers[id] = &Peer{ID: id, ConnectedAt: time.Now(), Source: source}
	}
	h.mu.Unlock()

	if !exists {
		select {
		case h.events <- node.Event{Kind: node.EventPeerDiscovered, Peer: id.String()}:
		case <-h.ctx.Done():
		}
		h.persistPeer(id, source)
	}
}

func (h *Host) removePeer(id peer.ID) {
	h.mu.Lock()
	_, existed := h.peers[id]
	delete(h.peers, id)
	h.mu.Unlock()

	if existed {
		select {
		case h.events <- node.Event{Kind: node.EventPeerExpired, Peer: id.String()}:
		case <-h.ctx.Done():
		}
	}
}

func (h *Host) persistPeer(id peer.ID, source string) {
	if h.peerStore == nil || h.host == nil {
		return
	}
	addrs := h.host.Peerstore().Addrs(id)
	addrStrs := make([]string, len(addrs))
	for i, a := range addrs {
		addrStrs[i] = a.String()
	}
	rec := PeerRecord{ID: id.String(), Addrs: addrStrs, LastSeen: time.Now().Unix(), Source: source}
	if err := h.peerStore.Save(rec); err != nil {
		log.P2P.Warn().Err(err).Str("peer", id.String()).Msg("persist peer record")
	}
}

// dialSeedPeers prunes stale entries from the peer-address cache, then
// dials every remaining persisted peer in the background. This lets a
// restarted node reconnect to peers it already knew about instead of
// waiting purely on mDNS to rediscover them.
func (h *Host) dialSeedPeers() {
	if h.peerStore == nil {
		return
	}
	if n, err := h.peerStore.PruneStale(staleThreshold); err != nil {
		log.P2P.Warn().Err(err).Msg("prune stale peer records")
	} else if n > 0 {
		log.P2P.Info().Int("count", n).Msg("pruned stale peer records")
	}

	records, err := h.peerStore.LoadAll()
	if err != nil {
		log.P2P.Warn().Err(err).Msg("load persisted peer records")
		return
	}
	for _, rec := range records {
		go h.dialSeedPeer(rec)
	}
}

// dialSeedPeer tries each address of a persisted peer record in turn,
// stopping at the first successful connection.
func (h *Host) dialSeedPeer(rec PeerRecord) {
	for _, raw := range rec.Addrs {
		ma, err := multiaddr.NewMultiaddr(raw)
		if err != nil {
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil || info.ID == h.host.ID() {
			continue
		}
		ctx, cancel := context.WithTimeout(h.ctx, seedDialTimeout)
		err = h.host.Connect(ctx, *info)
		cancel()
		if err == nil {
			h.addPeer(info.ID, "seed")
			return
		}
	}
	log.P2P.Debug().Str("peer", rec.ID).Msg("seed peer unreachable")
}

// loadOrCreateIdentity loads a persisted libp2p identity key from dataDir,
// or generates a new Ed25519 one and saves it, so the peer id survives
// restarts.
func loadOrCreateIdentity(dataDir string) (libp2pcrypto.PrivKey, error) {
	keyPath := filepath.Join(dataDir, "node.key")

	if data, err := os.ReadFile(keyPath); err == nil {
		keyBytes, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		return libp2pcrypto.UnmarshalEd25519PrivateKey(keyBytes)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return nil, fmt.Errorf("save node key: %w", err)
	}
	return priv, nil
}
