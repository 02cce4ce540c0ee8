package event

import (
	"acpievt/kernel/kfmt"
	"io"

	"github.com/davecgh/go-spew/spew"
)

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// BlockSnapshot describes a GPE block.
type BlockSnapshot struct {
	Space     string
	Address   uint64
	Registers int
	FirstGPE  uint32
	LastGPE   uint32
}

// GPESnapshot describes the software state of a GPE.
type GPESnapshot struct {
	Number     uint32
	Trigger    string
	HasHandler bool
	HasMethod  bool
}

// Snapshot is a point-in-time view of the event core state.
type Snapshot struct {
	FixedHandlers map[string]bool
	Blocks        []BlockSnapshot
	GPEs          []GPESnapshot
	Pending       int
}

// Snapshot captures the software state of the subsystem. Only GPEs with a
// trigger type, handler or method are included.
func (s *Subsystem) Snapshot() Snapshot {
	snap := Snapshot{
		FixedHandlers: make(map[string]bool, NumFixedEvents),
		Pending:       s.Pending(),
	}

	for ev := FixedEvent(0); ev < NumFixedEvents; ev++ {
		snap.FixedHandlers[ev.String()] = s.fixedHandlers[ev].Load() != nil
	}

	for _, blk := range s.gpeBlocks {
		snap.Blocks = append(snap.Blocks, BlockSnapshot{
			Space:     blk.addr.Space.String(),
			Address:   blk.addr.Address,
			Registers: blk.count,
			FirstGPE:  blk.baseGPE,
			LastGPE:   blk.baseGPE + uint32(blk.count*8) - 1,
		})
	}

	for i := range s.gpeEvents {
		ev := &s.gpeEvents[i]
		info := ev.info.Load()
		if info.trigger == TriggerNone && info.handler == nil && info.method == nil {
			continue
		}

		snap.GPEs = append(snap.GPEs, GPESnapshot{
			Number:     ev.number,
			Trigger:    info.trigger.String(),
			HasHandler: info.handler != nil,
			HasMethod:  info.method != nil,
		})
	}

	return snap
}

// Dump writes a human readable description of the subsystem state to w. If
// w is nil, the output is sent to the subsystem logger at debug level.
func (s *Subsystem) Dump(w io.Writer) {
	if w == nil {
		w = s.log.Writer(kfmt.LevelDebug)
	}
	dumpConfig.Fdump(w, s.Snapshot())
}
