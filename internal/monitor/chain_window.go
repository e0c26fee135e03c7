package monitor

import (
	"github.com/ethereum/go-ethereum/common"
)

// blockRef is a minimal retained header: enough to detect whether the chain
// under us has reorganized without re-querying history on every poll.
//
// Grounded on other_examples/Shubhaankar-Sharma-ethkit/ethmonitor.go's
// retained canonical-chain window (its *Chain type keeps up to
// BlockRetentionLimit recent blocks and compares parent hashes on each new
// block to detect a reorg locally).
type blockRef struct {
	Height uint64
	Hash   common.Hash
}

// chainWindow retains the last N observed (height, hash) pairs for one
// chain so the monitor can detect a reorg by comparing a newly observed
// block's parent against what it last saw at that height, instead of
// replaying the whole retention window through the RPC client.
type chainWindow struct {
	retention int
	blocks    []blockRef
}

func newChainWindow(retention int) *chainWindow {
	return &chainWindow{retention: retention}
}

// Head returns the most recently retained block, or false if empty.
func (w *chainWindow) Head() (blockRef, bool) {
	if len(w.blocks) == 0 {
		return blockRef{}, false
	}
	return w.blocks[len(w.blocks)-1], true
}

// HashAt returns the retained hash at height, or false if it has fallen out
// of the retention window or was never observed.
func (w *chainWindow) HashAt(height uint64) (common.Hash, bool) {
	for _, b := range w.blocks {
		if b.Height == height {
			return b.Hash, true
		}
	}
	return common.Hash{}, false
}

// Append records a new observed block, evicting the oldest once the
// retention limit is exceeded.
func (w *chainWindow) Append(ref blockRef) {
	w.blocks = append(w.blocks, ref)
	if len(w.blocks) > w.retention {
		w.blocks = w.blocks[len(w.blocks)-w.retention:]
	}
}

// Rewind discards every retained block at or above fromHeight, used after a
// reorg is detected and the cursor rewinds to the deepest common ancestor.
func (w *chainWindow) Rewind(fromHeight uint64) {
	kept := w.blocks[:0]
	for _, b := range w.blocks {
		if b.Height < fromHeight {
			kept = append(kept, b)
		}
	}
	w.blocks = kept
}
