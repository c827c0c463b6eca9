package rom

import (
	"github.com/pkg/errors"

	"github.com/handegar/mp2kemu/base"
)

// The resolved kind of one bank entry.
type InstrType int

const (
	InstrInvalid InstrType = iota
	InstrPCM
	InstrSquare1
	InstrSquare2
	InstrWave
	InstrNoise
)

// An Instrument is one fully resolved voice definition: what a track
// ends up with after keysplit/drumkit indirection.
type Instrument struct {
	Type        InstrType
	FixedPitch  bool  // PCM plays at the sample's own rate, ignoring key
	ForcedKey   uint8 // drumkit entries force the played key (0 = off)
	ForcedPan   int8  // drumkit pan override, only if PanOverride
	PanOverride bool
	SamplePtr   uint32 // PCM: bus pointer to sample header
	WavePtr     uint32 // wave: bus pointer to 16 nibble-packed bytes
	Duty        uint8  // square: 0..3
	NoisePatt   uint8  // noise: 0 fine, 1 rough
	Attack      uint8
	Decay       uint8
	Sustain     uint8
	Release     uint8
}

// A Bank reads 12-byte instrument entries at a fixed file offset.
type Bank struct {
	rom *Rom
	pos uint32
}

func NewBank(r *Rom, pos uint32) *Bank {
	return &Bank{rom: r, pos: pos}
}

// Lookup resolves instrument number instrNo for midiKey, following at
// most one level of keysplit/drumkit indirection like the hardware
// driver does.
func (b *Bank) Lookup(instrNo uint8, midiKey uint8) (Instrument, error) {
	return b.lookup(b.pos+uint32(instrNo)*base.InstSize, midiKey, false)
}

func (b *Bank) lookup(entry uint32, midiKey uint8, nested bool) (Instrument, error) {
	var inst Instrument

	typ, err := b.rom.U8(entry)
	if err != nil {
		return inst, errors.Wrap(err, "instrument entry")
	}

	switch typ {
	case base.InstKeySplit:
		if nested {
			return inst, errors.New("nested keysplit instrument")
		}
		subTable, err := b.rom.U32(entry + 4)
		if err != nil {
			return inst, err
		}
		keyMap, err := b.rom.U32(entry + 8)
		if err != nil {
			return inst, err
		}
		mapOff, err := b.rom.Ptr(keyMap)
		if err != nil {
			return inst, errors.Wrap(err, "keysplit map")
		}
		subIdx, err := b.rom.U8(mapOff + uint32(midiKey))
		if err != nil {
			return inst, err
		}
		subOff, err := b.rom.Ptr(subTable)
		if err != nil {
			return inst, errors.Wrap(err, "keysplit table")
		}
		return b.lookup(subOff+uint32(subIdx)*base.InstSize, midiKey, true)

	case base.InstDrumkit:
		if nested {
			return inst, errors.New("nested drumkit instrument")
		}
		subTable, err := b.rom.U32(entry + 4)
		if err != nil {
			return inst, err
		}
		subOff, err := b.rom.Ptr(subTable)
		if err != nil {
			return inst, errors.Wrap(err, "drumkit table")
		}
		inst, err = b.lookup(subOff+uint32(midiKey)*base.InstSize, midiKey, true)
		if err != nil {
			return inst, err
		}
		// Drumkit sub-entries play their stored key, not the struck one.
		key, err := b.rom.U8(subOff + uint32(midiKey)*base.InstSize + 1)
		if err != nil {
			return inst, err
		}
		inst.ForcedKey = key
		pan, err := b.rom.U8(subOff + uint32(midiKey)*base.InstSize + 3)
		if err != nil {
			return inst, err
		}
		if pan&0x80 != 0 {
			inst.PanOverride = true
			inst.ForcedPan = int8(pan&0x7F) - 64
		}
		return inst, nil
	}

	adsr, err := b.rom.Slice(entry+8, 4)
	if err != nil {
		return inst, err
	}
	inst.Attack = adsr[0]
	inst.Decay = adsr[1]
	inst.Sustain = adsr[2]
	inst.Release = adsr[3]

	data, err := b.rom.U32(entry + 4)
	if err != nil {
		return inst, err
	}

	switch typ {
	case base.InstPCM, base.InstPCMFixed:
		inst.Type = InstrPCM
		inst.FixedPitch = typ == base.InstPCMFixed
		inst.SamplePtr = data
	case base.InstSquare1, base.InstSquare1Alt:
		inst.Type = InstrSquare1
		inst.Duty = uint8(data & 3)
	case base.InstSquare2, base.InstSquare2Alt:
		inst.Type = InstrSquare2
		inst.Duty = uint8(data & 3)
	case base.InstWave, base.InstWaveAlt:
		inst.Type = InstrWave
		inst.WavePtr = data
	case base.InstNoise, base.InstNoiseAlt:
		inst.Type = InstrNoise
		inst.NoisePatt = uint8(data & 1)
	default:
		return inst, errors.Errorf("unknown instrument type 0x%02X", typ)
	}
	return inst, nil
}
