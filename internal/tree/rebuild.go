package tree

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/deploymenttheory/go-uffs/internal/blockinfo"
	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// Rebuild reconstructs the whole index from the tags on flash. Blocks with a
// bad mark go to the bad list. Blocks whose page 0 is not a live page are
// erased and go to the erased list. When two blocks claim the same object,
// the one with the newer generation wins and the other is erased. Data
// extents whose file no longer exists are erased.
func (t *Tree) Rebuild(ctx context.Context, dev interfaces.FlashDevice) error {
	geo := dev.Geometry()
	if geo != t.geo {
		return errors.Wrapf(types.ErrInvalidArgument, "device geometry %+v does not match tree geometry %+v", geo, t.geo)
	}

	t.Init()
	stamps := make(map[NodeID]types.BlockTimeStamp)
	lengths := make(map[NodeID]uint32)

	for i := range t.nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := &t.nodes[i]

		if dev.IsBadBlock(n.Block) {
			t.InsertBad(n)
			continue
		}

		bi := blockinfo.Load(dev, n.Block)
		head := bi.Head()
		if !head.Live() {
			if bi.IsUsed() {
				t.log.WithField("block", n.Block).Info("erasing block without a live page 0")
			}
			t.Reclaim(dev, n, bi.IsUsed())
			continue
		}

		tag := head.Tag
		if tag.Type == types.ObjectReserved {
			t.Reclaim(dev, n, true)
			continue
		}

		n.Kind = KindOf(tag.Type)
		n.Parent = tag.Parent
		n.Serial = tag.Serial
		if n.Kind != KindData {
			n.Sum = tag.NameSum
		}
		length := uint32(bi.DataLength())
		if slot := bi.FindPage(0); n.Kind == KindFile && slot >= 0 {
			// page 0 of a file holds its FileInfo record
			length -= uint32(bi.Pages[slot].Tag.DataLen)
		}

		dup := t.Find(tag.Type, tag.Parent, tag.Serial)
		if dup == nil && n.Kind != KindData {
			dup = t.FindBySerial(tag.Serial)
		}
		if dup != nil {
			if !tag.BlockTS.IsNewerThan(stamps[dup.id]) || dup.Kind != n.Kind {
				t.log.WithFields(logrus.Fields{
					"block":  n.Block,
					"serial": tag.Serial,
					"winner": dup.Block,
				}).Warn("erasing stale copy of object block")
				t.Reclaim(dev, n, true)
				continue
			}
			t.log.WithFields(logrus.Fields{
				"block":  dup.Block,
				"serial": tag.Serial,
				"winner": n.Block,
			}).Warn("erasing stale copy of object block")
			dup.Block, n.Block = n.Block, dup.Block
			dup.Sum = n.Sum
			stamps[dup.id] = tag.BlockTS
			lengths[dup.id] = length
			t.Reclaim(dev, n, true)
			continue
		}

		t.Insert(n)
		stamps[n.id] = tag.BlockTS
		lengths[n.id] = length
	}

	t.settleLengths(dev, lengths)

	t.log.WithFields(logrus.Fields{
		"erased": t.erasedCount,
		"bad":    t.badCount,
	}).Debug("tree rebuilt from flash")
	return nil
}

// settleLengths assigns data extent lengths, drops orphan extents and sums
// every file's length
func (t *Tree) settleLengths(dev interfaces.FlashDevice, lengths map[NodeID]uint32) {
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.loc != inTable || n.Kind != KindData {
			continue
		}
		if t.FindFile(n.Parent) == nil {
			t.log.WithFields(logrus.Fields{
				"block":  n.Block,
				"parent": n.Parent,
				"serial": n.Serial,
			}).Warn("erasing orphan data extent")
			t.Remove(n)
			t.Reclaim(dev, n, true)
			continue
		}
		n.Len = lengths[n.id]
	}

	for i := range t.nodes {
		n := &t.nodes[i]
		if n.loc != inTable || n.Kind != KindFile {
			continue
		}
		n.Len = lengths[n.id]
		for _, ext := range t.DataExtents(n.Serial) {
			n.Len += ext.Len
		}
	}
}

// Reclaim erases a detached node's block and lists it as erased, or as bad
// when the erase fails
func (t *Tree) Reclaim(dev interfaces.FlashDevice, n *Node, erase bool) {
	if erase {
		if status := dev.EraseBlock(n.Block); status != interfaces.FlashOK {
			t.log.WithFields(logrus.Fields{"block": n.Block, "status": status}).Warn("erase failed, retiring block")
			dev.MarkBadBlock(n.Block)
			t.InsertBad(n)
			return
		}
	}
	t.InsertErasedTail(n)
}
