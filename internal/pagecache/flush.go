package pagecache

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/deploymenttheory/go-uffs/internal/blockinfo"
	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/parsers/pages"
	"github.com/deploymenttheory/go-uffs/internal/tree"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// RecoveryResult is the outcome class of a block recovery
type RecoveryResult int

const (
	// RecoverySuccess means the object now lives in a fresh block.
	RecoverySuccess RecoveryResult = iota
	// RecoveryExhausted means no erased block was left to recover into.
	RecoveryExhausted
)

func (r RecoveryResult) String() string {
	if r == RecoveryExhausted {
		return "exhausted"
	}
	return "success"
}

// RecoveryOutcome describes the most recent block recovery
type RecoveryOutcome struct {
	Result  RecoveryResult
	Block   types.BlockNum
	Written int
}

// LastRecovery returns the outcome of the most recent block recovery
func (p *Pool) LastRecovery() RecoveryOutcome {
	return p.lastRecovery
}

// flushSlot makes the dirty pages of one group durable. Pages are appended
// to the object's current block when it has room for all of them;
// otherwise the object is recovered into an erased block.
func (p *Pool) flushSlot(slot int, force bool) error {
	if p.groups.Count(slot) == 0 {
		return nil
	}
	if p.groups.Locked(slot) {
		return errors.Wrapf(types.ErrInvalidState, "dirty group %d is already being flushed", slot)
	}
	p.groups.check(slot)

	p.groups.Lock(slot)
	defer func() {
		_ = p.groups.Unlock(slot)
	}()

	owner, _ := p.groups.Owner(slot)
	node := p.tree.Find(owner.Type, owner.Parent, owner.Serial)
	if node == nil {
		return p.recover(slot, owner, nil, false)
	}

	if !force {
		bi := p.blocks.Get(node.Block)
		if bi.FreePages() >= p.groups.Count(slot) {
			return p.appendSlot(slot, owner, node, bi)
		}
	}
	return p.recover(slot, owner, node, false)
}

// appendSlot programs the group's pages, lowest page id first, into the
// free tail of the object's block
func (p *Pool) appendSlot(slot int, owner Identity, node *tree.Node, bi *blockinfo.BlockInfo) error {
	ts := bi.TimeStamp()
	next := bi.NextFreeSlot()
	fields := logrus.Fields{"block": node.Block, "serial": owner.Serial, "parent": owner.Parent}

	for p.groups.Count(slot) > 0 {
		b := p.groups.minPage(slot)
		tag, nameSum := p.sealTag(b.Identity, b.Data, b.DataLen, ts)
		hdr := pages.NewMiniHeader(b.Data)

		status := p.dev.WritePage(node.Block, uint32(next), hdr, b.Data, tag)
		p.blocks.Invalidate(node.Block)

		switch status {
		case interfaces.FlashBadBlock:
			p.log.WithFields(fields).Warn("block went bad during append, recovering object")
			return p.recover(slot, owner, node, true)
		case interfaces.FlashIOError:
			p.log.WithFields(fields).Warn("append failed, recovering object")
			return p.recover(slot, owner, node, false)
		}

		if err := p.commitBuffer(b, hdr); err != nil {
			return err
		}
		if b.PageID == 0 && node.Kind != tree.KindData {
			node.Sum = nameSum
		}
		next++
		p.stats.FlushedPages++
	}

	p.stats.Appends++
	if node.Kind == tree.KindData {
		node.Len = uint32(p.blocks.Get(node.Block).DataLength())
	}
	return nil
}

func (p *Pool) commitBuffer(b *Buffer, hdr types.MiniHeader) error {
	if err := p.groups.Unlink(b); err != nil {
		return err
	}
	b.Mark = MarkValid
	b.Header = hdr
	p.moveToHead(b)
	return nil
}

// sealTag builds the tag for one page. For page 0 of a directory or file it
// also returns the checksum of the name recorded there.
func (p *Pool) sealTag(id Identity, data []byte, dataLen int, ts types.BlockTimeStamp) (types.Tag, uint16) {
	tag := types.Tag{
		Dirty:   true,
		Valid:   true,
		Type:    id.Type,
		BlockTS: ts,
		DataLen: uint16(dataLen),
		PageID:  id.PageID,
		Serial:  id.Serial,
		Parent:  id.Parent,
		DataSum: pages.Sum16(data[:dataLen]),
	}
	if id.PageID == 0 && id.Type != types.ObjectData {
		if fi, err := pages.DecodeFileInfo(data[:dataLen]); err == nil {
			tag.NameSum = pages.NameSum(fi.Name)
		}
	}
	pages.SealTag(&tag)
	return tag, tag.NameSum
}

type copyResult struct {
	pages     int
	dirty     []*Buffer
	headers   []types.MiniHeader
	nameSum   uint16
	oldBad    bool
	truncated bool
	status    interfaces.FlashStatus
	err       error
}

// copyInto writes the object's pages 0, 1, ... into an erased block,
// taking each page from the dirty group, then the cache, then the old
// block. It stops at the first page none of them can supply, or at an
// empty dirty page, which ends the object.
func (p *Pool) copyInto(slot int, owner Identity, old *blockinfo.BlockInfo, dst types.BlockNum, ts types.BlockTimeStamp) copyResult {
	var res copyResult
	for i := 0; i < int(p.geo.PagesPerBlock); i++ {
		id := owner
		id.PageID = types.PageID(i)

		var data []byte
		var dataLen int
		var clone *ClonedBuffer

		dirty := p.groups.member(slot, id.PageID)
		if dirty != nil {
			if dirty.DataLen == 0 {
				res.truncated = true
				return res
			}
			data, dataLen = dirty.Data, dirty.DataLen
		} else if cached := p.find(id.Parent, id.Serial, id.PageID); cached != nil && cached.Mark == MarkValid {
			data, dataLen = cached.Data, cached.DataLen
		} else if old != nil {
			c, err := p.readOld(old, id, &res)
			if err != nil {
				res.err = err
				return res
			}
			if c == nil {
				return res
			}
			clone = c
			data, dataLen = c.Data, c.DataLen
		} else {
			return res
		}

		tag, nameSum := p.sealTag(id, data, dataLen, ts)
		hdr := pages.NewMiniHeader(data)
		status := p.dev.WritePage(dst, uint32(i), hdr, data, tag)
		if clone != nil {
			_ = p.FreeClone(clone)
		}
		if status.Failed() {
			res.status = status
			return res
		}

		if i == 0 {
			res.nameSum = nameSum
		}
		res.pages++
		if dirty != nil {
			res.dirty = append(res.dirty, dirty)
			res.headers = append(res.headers, hdr)
		}
	}
	return res
}

// readOld loads the newest copy of a page from the object's previous block
// into a clone. A nil clone with a nil error means the page is absent. A
// page that is present but unreadable is an error.
func (p *Pool) readOld(old *blockinfo.BlockInfo, id Identity, res *copyResult) (*ClonedBuffer, error) {
	slot := old.FindPage(id.PageID)
	if slot < 0 {
		return nil, nil
	}

	hdr, data, tag, status := p.dev.ReadPage(old.Block, uint32(slot))
	switch {
	case status == interfaces.FlashBadBlock:
		res.oldBad = true
	case status.Failed():
		p.log.WithFields(logrus.Fields{"block": old.Block, "slot": slot}).Warn("unreadable page in old block, abandoning recovery")
		return nil, errors.Wrapf(status.Err(), "reading %s from block %d slot %d", id, old.Block, slot)
	}
	if data == nil || int(tag.DataLen) > p.pgSize {
		return nil, errors.Wrapf(types.ErrIO, "block %d slot %d: bad data length %d", old.Block, slot, tag.DataLen)
	}

	c, err := p.takeClone()
	if err != nil {
		return nil, err
	}
	c.Identity = id
	c.DataLen = int(tag.DataLen)
	c.Header = hdr
	copy(c.Data, data)
	return c, nil
}

// recover rewrites an object into an erased block: every dirty page of the
// group plus every page of the old block that is not superseded. node is
// nil for an object that has no block yet. oldBad retires the old block
// instead of erasing it.
func (p *Pool) recover(slot int, owner Identity, node *tree.Node, oldBad bool) error {
	var old *blockinfo.BlockInfo
	var ts types.BlockTimeStamp
	if node != nil {
		old = p.blocks.Get(node.Block)
		ts = old.TimeStamp().Next()
	}

	fields := logrus.Fields{"serial": owner.Serial, "parent": owner.Parent, "type": owner.Type}
	retries := 0

	for {
		fresh, err := p.tree.GetErasedNode()
		if err != nil {
			p.lastRecovery = RecoveryOutcome{Result: RecoveryExhausted}
			p.log.WithFields(fields).Error("no erased block left for recovery")
			return errors.Wrapf(types.ErrOutOfSpace, "recovering %s", owner)
		}

		res := p.copyInto(slot, owner, old, fresh.Block, ts)
		oldBad = oldBad || res.oldBad

		if res.err != nil {
			p.tree.Reclaim(p.dev, fresh, res.pages > 0)
			p.blocks.Invalidate(fresh.Block)
			if old != nil {
				p.blocks.Invalidate(old.Block)
			}
			return res.err
		}

		switch res.status {
		case interfaces.FlashBadBlock:
			p.log.WithFields(fields).WithField("block", fresh.Block).Warn("block went bad during recovery, retrying")
			p.dev.MarkBadBlock(fresh.Block)
			p.blocks.Invalidate(fresh.Block)
			p.tree.InsertBad(fresh)
			p.stats.BadBlocks++
			continue
		case interfaces.FlashIOError:
			retries++
			p.stats.IORetries++
			p.tree.Reclaim(p.dev, fresh, true)
			p.blocks.Invalidate(fresh.Block)
			if retries >= p.maxIORetries {
				p.log.WithFields(fields).Error("giving up recovery after repeated write errors")
				return errors.Wrapf(types.ErrIO, "recovering %s: %d write failures", owner, retries)
			}
			p.log.WithFields(fields).WithField("block", fresh.Block).Warn("write failed during recovery, retrying")
			continue
		}

		if res.pages == 0 {
			p.tree.InsertErasedHead(fresh)
			if node != nil {
				return errors.Wrapf(types.ErrIO, "recovering %s: page 0 unreadable", owner)
			}
			return errors.Wrapf(types.ErrInvalidState, "new %s has no page 0", owner)
		}

		// the old block stays authoritative until every dirty page is placed
		if left := p.groups.Count(slot) - len(res.dirty); left > 0 && !res.truncated {
			p.tree.Reclaim(p.dev, fresh, true)
			p.blocks.Invalidate(fresh.Block)
			if old != nil && old.Unreadable() {
				p.blocks.Invalidate(old.Block)
				p.log.WithFields(fields).WithField("pending", left).Warn("old block has unreadable tags, recovery abandoned")
				return errors.Wrapf(types.ErrIO, "%s: block %d has unreadable tags", owner, old.Block)
			}
			p.log.WithFields(fields).WithField("pending", left).Error("dirty pages follow a missing page, recovery abandoned")
			return errors.Wrapf(types.ErrInvalidState, "%s: %d dirty pages follow a gap", owner, left)
		}

		return p.commit(slot, owner, node, fresh, res, oldBad)
	}
}

// commit publishes a completed recovery: the written buffers become valid,
// the node moves to the fresh block and the old block is released
func (p *Pool) commit(slot int, owner Identity, node, fresh *tree.Node, res copyResult, oldBad bool) error {
	for i, b := range res.dirty {
		if err := p.commitBuffer(b, res.headers[i]); err != nil {
			return err
		}
	}
	p.stats.FlushedPages += len(res.dirty)
	p.lastRecovery = RecoveryOutcome{Result: RecoverySuccess, Block: fresh.Block, Written: res.pages}

	if node == nil {
		fresh.Kind = tree.KindOf(owner.Type)
		fresh.Parent = owner.Parent
		fresh.Serial = owner.Serial
		if fresh.Kind != tree.KindData {
			fresh.Sum = res.nameSum
		}
		p.tree.Insert(fresh)
		p.blocks.Invalidate(fresh.Block)
		node = fresh
		p.stats.NewBlocks++
	} else {
		// the object keeps its node; the spare node takes the old block
		node.Block, fresh.Block = fresh.Block, node.Block
		if node.Kind != tree.KindData {
			node.Sum = res.nameSum
		}
		if oldBad {
			p.log.WithField("block", fresh.Block).Warn("retiring bad block after recovery")
			p.dev.MarkBadBlock(fresh.Block)
			p.tree.InsertBad(fresh)
			p.stats.BadBlocks++
		} else {
			p.tree.Reclaim(p.dev, fresh, true)
		}
		p.blocks.Invalidate(node.Block)
		p.blocks.Invalidate(fresh.Block)
		p.stats.Recoveries++
	}

	if node.Kind == tree.KindData {
		node.Len = uint32(p.blocks.Get(node.Block).DataLength())
	}

	// pages at and past an empty dirty page lie beyond the end of the object
	if left := p.groups.Members(slot); len(left) > 0 {
		for _, b := range left {
			if err := p.groups.Unlink(b); err != nil {
				return err
			}
			b.Mark = MarkEmpty
		}
		p.log.WithFields(logrus.Fields{
			"serial":  owner.Serial,
			"dropped": len(left),
		}).Debug("dirty pages past the end of the object dropped")
	}
	return nil
}
