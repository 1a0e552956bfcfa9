package p2p

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// discoveryNotifee handles mDNS peer discovery notifications.
type discoveryNotifee struct {
	host *Host
}

// HandlePeerFound is called when a peer is discovered via mDNS. It dials
// the peer; Host's connNotifier records the resulting connection and
// emits the EventPeerDiscovered event once it succeeds.
func (d *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == d.host.host.ID() {
		return
	}

	ctx, cancel := context.WithTimeout(d.host.ctx, 5*time.Second)
	defer cancel()

	if err := d.host.host.Connect(ctx, pi); err == nil {
		d.host.addPeer(pi.ID, "mdns")
	}
}
