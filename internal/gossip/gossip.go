// Package gossip defines the wire messages exchanged between emberchain
// peers and the trial-decode rules used to classify an inbound frame.
package gossip

import (
	"bytes"
	"encoding/json"

	"github.com/emberchain/emberchain/internal/log"
	"github.com/emberchain/emberchain/pkg/block"
)

// Topic names. Peers subscribe to both at startup.
const (
	TopicChains = "chains"
	TopicBlocks = "blocks"
)

// LocalChainRequest asks FromPeerID — the peer it's addressed to, not the
// sender — to publish its local chain back as a ChainResponse addressed
// to the requester's own id. Published on TopicChains.
type LocalChainRequest struct {
	FromPeerID string `json:"from_peer_id"`
}

// ChainResponse carries a snapshot of the sender's chain, addressed to a
// specific receiver by peer id. Published on TopicChains.
type ChainResponse struct {
	Blocks   []block.Block `json:"blocks"`
	Receiver string        `json:"receiver"`
}

// Kind identifies which of the three known message shapes an inbound
// frame decoded as.
type Kind int

const (
	// KindUnknown means the frame matched none of the known shapes. It is
	// logged and otherwise ignored.
	KindUnknown Kind = iota
	KindChainResponse
	KindLocalChainRequest
	KindBlock
)

// Message is the result of classifying an inbound frame: exactly one of
// the typed fields is populated, matching Kind.
type Message struct {
	Kind              Kind
	ChainResponse     ChainResponse
	LocalChainRequest LocalChainRequest
	Block             block.Block
}

// Classify attempts to decode raw as each known message shape in the
// fixed order the wire format requires: ChainResponse, then
// LocalChainRequest, then Block. JSON structure of Block and
// LocalChainRequest are disjoint, but ChainResponse is tried first and
// routed by its receiver field. A frame that matches none of the three is
// logged and returned as KindUnknown.
func Classify(raw []byte) Message {
	var cr ChainResponse
	if err := strictUnmarshal(raw, &cr); err == nil && cr.Receiver != "" {
		return Message{Kind: KindChainResponse, ChainResponse: cr}
	}

	var req LocalChainRequest
	if err := strictUnmarshal(raw, &req); err == nil && req.FromPeerID != "" {
		return Message{Kind: KindLocalChainRequest, LocalChainRequest: req}
	}

	var b block.Block
	if err := strictUnmarshal(raw, &b); err == nil && b.Hash != "" {
		return Message{Kind: KindBlock, Block: b}
	}

	log.P2P.Warn().Str("frame", string(raw)).Msg("dropping gossip frame: unrecognized shape")
	return Message{Kind: KindUnknown}
}

// strictUnmarshal decodes raw into v, rejecting unknown fields so that a
// frame of one shape cannot accidentally also satisfy another's
// zero-value-tolerant decode.
func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// EncodeBlock marshals a Block for publication on TopicBlocks.
func EncodeBlock(b block.Block) ([]byte, error) {
	return json.Marshal(b)
}

// EncodeChainResponse marshals a ChainResponse for publication on
// TopicChains.
func EncodeChainResponse(r ChainResponse) ([]byte, error) {
	return json.Marshal(r)
}

// EncodeLocalChainRequest marshals a LocalChainRequest for publication on
// TopicChains.
func EncodeLocalChainRequest(r LocalChainRequest) ([]byte, error) {
	return json.Marshal(r)
}
