// Package console parses the standard-input command surface described in
// spec.md §6: one command per line, dispatched by the node event loop.
package console

import "strings"

// Kind identifies which console command a line represents.
type Kind int

const (
	KindUnknown Kind = iota
	KindListPeers
	KindListChain
	KindCreateBlock
)

// Command is a parsed console line. Payload is only meaningful for
// KindCreateBlock, and preserves the literal substring following
// "create b", leading space and all.
type Command struct {
	Kind    Kind
	Payload string
}

const createBlockPrefix = "create b"

// Parse classifies a single console line. "ls p" lists peers; any line
// beginning with "ls c" prints the chain; "create b" followed by
// arbitrary text mines and broadcasts a block carrying that text verbatim
// (including its leading space, per spec.md §6); anything else is
// unknown.
func Parse(line string) Command {
	switch {
	case line == "ls p":
		return Command{Kind: KindListPeers}
	case strings.HasPrefix(line, "ls c"):
		return Command{Kind: KindListChain}
	case strings.HasPrefix(line, createBlockPrefix):
		return Command{Kind: KindCreateBlock, Payload: line[len(createBlockPrefix):]}
	default:
		return Command{Kind: KindUnknown}
	}
}
