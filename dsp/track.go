package dsp

import (
	"github.com/handegar/mp2kemu/base"
)

// LFO destinations set by MODT.
const (
	ModPitch = 0
	ModVol   = 1
	ModPan   = 2
)

// A Track holds the interpreter state of one sequence channel. The
// program counter is a file offset into the ROM image.
type Track struct {
	Idx uint8

	pos         uint32
	returnStack [base.TrackStackDepth]uint32
	stackDepth  uint8
	reptCount   uint8

	lastCmd byte
	lastKey uint8
	lastVel uint8

	prog     uint8
	prio     uint8
	vol      uint8
	pan      int8
	bend     int8
	bendr    uint8
	tune     int8
	keyShift int8

	mod        uint8
	modt       uint8
	lfos       uint8
	lfodl      uint8
	lfodlCount uint8
	lfoPhase   uint8

	echoVol uint8
	echoLen uint8

	delay     uint8
	tickCount uint64

	Muted   bool
	running bool
	err     error
}

func newTrack(idx uint8, pos uint32) *Track {
	t := &Track{Idx: idx}
	t.reset(pos)
	return t
}

func (t *Track) reset(pos uint32) {
	*t = Track{
		Idx:     t.Idx,
		pos:     pos,
		prog:    0xFF,
		vol:     100,
		bendr:   2,
		lfos:    22,
		running: pos != 0,
		Muted:   t.Muted,
	}
}

func (t *Track) IsRunning() bool { return t.running }
func (t *Track) Err() error      { return t.err }
func (t *Track) Pos() uint32     { return t.pos }
func (t *Track) Prog() uint8     { return t.prog }
func (t *Track) Delay() uint8    { return t.delay }

// fine stops the track. Voices already sounding keep ringing out.
func (t *Track) fine() {
	t.running = false
}

// fail records the first data error and silences the track; other
// tracks keep playing.
func (t *Track) fail(err error) {
	if t.err == nil {
		t.err = err
	}
	t.fine()
}

// tickLFO advances the modulation phase once per tick, after the
// LFODL delay has elapsed.
func (t *Track) tickLFO() {
	if t.lfodlCount > 0 {
		t.lfodlCount--
		return
	}
	if t.mod > 0 {
		t.lfoPhase += t.lfos
	}
}

// lfoValue is a triangle over the 8-bit phase, scaled by MOD depth
// to -mod..+mod.
func (t *Track) lfoValue() int {
	if t.mod == 0 || t.lfodlCount > 0 {
		return 0
	}
	p := int(t.lfoPhase)
	var v int
	switch {
	case p < 64:
		v = p
	case p < 192:
		v = 128 - p
	default:
		v = p - 256
	}
	return v * int(t.mod) / 64
}

// GetPitch folds bend, tuning and pitch modulation into 64ths of a
// semitone.
func (t *Track) GetPitch() int16 {
	pitch := int(t.bend)*int(t.bendr) + int(t.tune)
	if t.modt == ModPitch {
		pitch += t.lfoValue()
	}
	if pitch > 32767 {
		pitch = 32767
	}
	if pitch < -32768 {
		pitch = -32768
	}
	return int16(pitch)
}

func (t *Track) GetVol() uint8 {
	vol := int(t.vol)
	if t.modt == ModVol {
		vol += t.lfoValue()
	}
	if vol < 0 {
		vol = 0
	}
	if vol > 127 {
		vol = 127
	}
	return uint8(vol)
}

func (t *Track) GetPan() int8 {
	pan := int(t.pan)
	if t.modt == ModPan {
		pan += t.lfoValue()
	}
	if pan < -64 {
		pan = -64
	}
	if pan > 63 {
		pan = 63
	}
	return int8(pan)
}
