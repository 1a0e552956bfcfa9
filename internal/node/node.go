// Package node implements the single-owner event loop that ties the
// chain, the console, and the gossip substrate together. It depends only
// on the narrow Gossip capability interface defined here — never on
// libp2p directly — so it can be driven by a fake in tests.
package node

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/emberchain/emberchain/internal/chain"
	"github.com/emberchain/emberchain/internal/console"
	"github.com/emberchain/emberchain/internal/gossip"
	"github.com/emberchain/emberchain/internal/log"
	"github.com/emberchain/emberchain/internal/miner"
)

// initDelay is how long the event loop waits after startup before firing
// the one-shot init signal, giving peer discovery time to populate.
const initDelay = 1 * time.Second

// EventKind identifies the shape of a value received from a Gossip
// substrate's event stream.
type EventKind int

const (
	EventMessage EventKind = iota
	EventPeerDiscovered
	EventPeerExpired
)

// Event is a single occurrence reported by the Gossip substrate: either an
// inbound pub/sub message, or a peer discovery/expiry notification.
type Event struct {
	Kind  EventKind
	Topic string
	Data  []byte
	Peer  string
}

// Gossip is the capability a transport must provide for the node event
// loop to run: publish-by-topic, an inbound event stream, and the current
// set of known peer ids. internal/p2p.Host satisfies this in production;
// tests use a hand-written fake.
type Gossip interface {
	Publish(topic string, data []byte) error
	Events() <-chan Event
	Peers() []string
	SelfID() string
}

// Node owns the chain and drives the cooperative event loop described in
// spec.md §4.5. All chain mutations happen from the single goroutine
// running Run.
type Node struct {
	chain  *chain.Chain
	gossip Gossip
	in     io.Reader
	out    io.Writer

	pending chan gossip.ChainResponse
}

// New constructs a Node. c must not yet have had InitGenesis called; Run
// performs that when its one-shot init signal fires, initDelay after it
// starts.
func New(c *chain.Chain, g Gossip, in io.Reader, out io.Writer) *Node {
	return &Node{
		chain:   c,
		gossip:  g,
		in:      in,
		out:     out,
		pending: make(chan gossip.ChainResponse, 8),
	}
}

// Run drives the event loop until ctx is cancelled or stdin reaches EOF.
// It returns a non-nil error only for the protocol-fatal ChooseChain case
// (spec.md §4.3); callers should treat that as fatal and exit non-zero.
func (n *Node) Run(ctx context.Context) error {
	lines := n.readConsoleLines(ctx)

	initTick := time.After(initDelay)

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := n.handleConsoleLine(line); err != nil {
				return err
			}

		case resp, ok := <-n.pending:
			if !ok {
				continue
			}
			n.publishChainResponse(resp)

		case <-initTick:
			initTick = nil
			n.handleInit()

		case ev, ok := <-n.gossip.Events():
			if !ok {
				continue
			}
			if err := n.handleEvent(ev); err != nil {
				return err
			}
		}
	}
}

// handleInit installs the genesis block and, if any peer is already
// known, addresses a LocalChainRequest to the last of those peers so this
// node can catch up. The request's FromPeerID names the peer being asked,
// not this node — only that peer will recognize itself as the addressee
// and reply (see handleMessage's KindLocalChainRequest case).
func (n *Node) handleInit() {
	n.chain.InitGenesis()

	peers := dedupPeers(n.gossip.Peers())
	if len(peers) == 0 {
		return
	}
	target := peers[len(peers)-1]

	raw, err := gossip.EncodeLocalChainRequest(gossip.LocalChainRequest{FromPeerID: target})
	if err != nil {
		log.Node.Error().Err(err).Msg("encode local chain request")
		return
	}
	if err := n.gossip.Publish(gossip.TopicChains, raw); err != nil {
		log.Node.Warn().Err(err).Msg("publish local chain request")
	}
}

// handleEvent dispatches a single Gossip substrate event: peer
// discovery/expiry are logged; inbound messages are classified and acted
// on per spec.md §4.4.
func (n *Node) handleEvent(ev Event) error {
	switch ev.Kind {
	case EventPeerDiscovered:
		log.Node.Info().Str("peer", ev.Peer).Msg("peer discovered")
		return nil
	case EventPeerExpired:
		log.Node.Info().Str("peer", ev.Peer).Msg("peer expired")
		return nil
	case EventMessage:
		return n.handleMessage(ev.Data)
	default:
		return nil
	}
}

// handleMessage classifies an inbound gossip frame and acts on it.
func (n *Node) handleMessage(raw []byte) error {
	msg := gossip.Classify(raw)
	switch msg.Kind {
	case gossip.KindChainResponse:
		if msg.ChainResponse.Receiver != n.gossip.SelfID() {
			return nil
		}
		chosen, err := chain.ChooseChain(n.chain.Blocks(), msg.ChainResponse.Blocks)
		if err != nil {
			log.Node.Error().Err(err).Msg("choose_chain: both chains invalid")
			return err
		}
		n.chain.Replace(chosen)
		return nil

	case gossip.KindLocalChainRequest:
		if msg.LocalChainRequest.FromPeerID != n.gossip.SelfID() {
			return nil
		}
		select {
		case n.pending <- gossip.ChainResponse{Blocks: n.chain.Blocks(), Receiver: msg.LocalChainRequest.FromPeerID}:
		default:
			log.Node.Warn().Msg("pending response queue full, dropping chain response")
		}
		return nil

	case gossip.KindBlock:
		if !n.chain.TryAppend(msg.Block) {
			log.Node.Warn().Uint64("id", msg.Block.ID).Msg("rejected inbound block")
		}
		return nil

	default:
		return nil
	}
}

// publishChainResponse drains one queued ChainResponse onto the "chains"
// topic.
func (n *Node) publishChainResponse(resp gossip.ChainResponse) {
	raw, err := gossip.EncodeChainResponse(resp)
	if err != nil {
		log.Node.Error().Err(err).Msg("encode chain response")
		return
	}
	if err := n.gossip.Publish(gossip.TopicChains, raw); err != nil {
		log.Node.Warn().Err(err).Msg("publish chain response")
	}
}

// handleConsoleLine dispatches one parsed console command.
func (n *Node) handleConsoleLine(line string) error {
	cmd := console.Parse(line)
	switch cmd.Kind {
	case console.KindListPeers:
		for _, p := range dedupPeers(n.gossip.Peers()) {
			fmt.Fprintln(n.out, p)
		}
	case console.KindListChain:
		buf, err := json.MarshalIndent(n.chain.Blocks(), "", "  ")
		if err != nil {
			log.Node.Error().Err(err).Msg("marshal chain for display")
			return nil
		}
		fmt.Fprintln(n.out, string(buf))
	case console.KindCreateBlock:
		n.createBlock(cmd.Payload)
	default:
		log.Console.Error().Str("line", line).Msg("unknown command")
	}
	return nil
}

// createBlock mines a block on top of the current tip and, per spec.md
// §4.5, appends it locally without re-validation (the miner guarantees
// well-formedness) before broadcasting it on "blocks".
func (n *Node) createBlock(payload string) {
	tip, ok := n.chain.Tip()
	if !ok {
		log.Node.Error().Msg("create b: chain has no tip, genesis missing")
		return
	}

	b, err := miner.NewBlock(context.Background(), tip.ID+1, tip.Hash, payload)
	if err != nil {
		log.Miner.Error().Err(err).Msg("mining failed")
		return
	}

	n.chain.AppendUnchecked(b)

	raw, err := gossip.EncodeBlock(b)
	if err != nil {
		log.Node.Error().Err(err).Msg("encode mined block")
		return
	}
	if err := n.gossip.Publish(gossip.TopicBlocks, raw); err != nil {
		log.Node.Warn().Err(err).Msg("publish mined block")
	}
}

// readConsoleLines starts a goroutine reading newline-delimited commands
// from n.in and returns a channel of lines, closed on EOF or ctx
// cancellation.
func (n *Node) readConsoleLines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(n.in)
		console.WritePrompt(n.out)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
			console.WritePrompt(n.out)
		}
	}()
	return out
}

// dedupPeers returns peers with duplicates removed, in sorted order for
// deterministic display.
func dedupPeers(peers []string) []string {
	seen := make(map[string]struct{}, len(peers))
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
