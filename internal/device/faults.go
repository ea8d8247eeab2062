package device

import (
	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// FaultPlan scripts failures for one block of an emulator
type FaultPlan struct {
	// FailWriteAfter is the number of page writes the block accepts after
	// each erase before WriteStatus is returned. Zero fails the first write.
	// A negative value disables write faults.
	FailWriteAfter int

	// WriteStatus is returned by a failing write.
	WriteStatus interfaces.FlashStatus

	// ReadStatus is returned by every read of the block. FlashBadBlock and
	// FlashCorrected still deliver the page data.
	ReadStatus interfaces.FlashStatus

	// EraseStatus is returned by every erase of the block.
	EraseStatus interfaces.FlashStatus

	// Once removes the plan after its first write fault fires.
	Once bool

	writes int
}

// WriteFault returns a plan failing the write after n accepted writes
func WriteFault(n int, status interfaces.FlashStatus) FaultPlan {
	return FaultPlan{FailWriteAfter: n, WriteStatus: status}
}

// ReadFault returns a plan that reports status on every read
func ReadFault(status interfaces.FlashStatus) FaultPlan {
	return FaultPlan{FailWriteAfter: -1, ReadStatus: status}
}

func (p *FaultPlan) onWrite() (interfaces.FlashStatus, bool) {
	if p.FailWriteAfter < 0 || p.WriteStatus == interfaces.FlashOK {
		return interfaces.FlashOK, false
	}
	if p.writes >= p.FailWriteAfter {
		return p.WriteStatus, true
	}
	p.writes++
	return interfaces.FlashOK, false
}

// InjectFault installs a fault plan on a block, replacing any previous plan
func (e *Emulator) InjectFault(block types.BlockNum, plan FaultPlan) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := plan
	p.writes = 0
	e.faults[block] = &p
}

// ClearFault removes the fault plan of a block
func (e *Emulator) ClearFault(block types.BlockNum) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.faults, block)
}
