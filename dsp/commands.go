package dsp

import (
	"github.com/pkg/errors"

	"github.com/handegar/mp2kemu/base"
)

// cmdTable maps command mnemonics to their handlers. Waits and notes
// are dispatched by range checks in executeEvent; this table covers
// the fixed commands, TIE and EOT included.
var cmdTable = map[string]func(sg *StreamGenerator, t *Track) error{
	"FINE": func(sg *StreamGenerator, t *Track) error {
		sg.releaseTrackVoices(t.Idx, false)
		t.fine()
		return nil
	},
	"GOTO": func(sg *StreamGenerator, t *Track) error {
		pos, err := sg.readPtr(t)
		if err != nil {
			return err
		}
		t.pos = pos
		return nil
	},
	"PATT": func(sg *StreamGenerator, t *Track) error {
		pos, err := sg.readPtr(t)
		if err != nil {
			return err
		}
		if t.stackDepth >= base.TrackStackDepth {
			return errors.Errorf("pattern stack overflow at 0x%X", t.pos)
		}
		t.returnStack[t.stackDepth] = t.pos
		t.stackDepth++
		t.pos = pos
		return nil
	},
	"PEND": func(sg *StreamGenerator, t *Track) error {
		// PEND without PATT is ignored, like the hardware driver does
		if t.stackDepth > 0 {
			t.stackDepth--
			t.pos = t.returnStack[t.stackDepth]
		}
		return nil
	},
	"REPT": func(sg *StreamGenerator, t *Track) error {
		count, err := sg.readU8(t)
		if err != nil {
			return err
		}
		pos, err := sg.readPtr(t)
		if err != nil {
			return err
		}
		if count == 0 {
			// Repeat forever, the usual song loop construct
			t.pos = pos
			return nil
		}
		if t.reptCount == 0 {
			t.reptCount = count
		}
		t.reptCount--
		if t.reptCount > 0 {
			t.pos = pos
		}
		return nil
	},
	"MEMACC": func(sg *StreamGenerator, t *Track) error {
		// Driver-internal memory ops; read and discard
		for i := 0; i < 3; i++ {
			if _, err := sg.readU8(t); err != nil {
				return err
			}
		}
		return nil
	},
	"PRIO": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.prio = v
		return nil
	},
	"TEMPO": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		sg.seq.tempo = uint16(v) * 2
		return nil
	},
	"KEYSH": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.keyShift = int8(v)
		return nil
	},
	"VOICE": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.prog = v
		return nil
	},
	"VOL": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.vol = v & 0x7F
		return nil
	},
	"PAN": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.pan = int8(v&0x7F) - 64
		return nil
	},
	"BEND": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.bend = int8(v&0x7F) - 64
		return nil
	},
	"BENDR": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.bendr = v
		return nil
	},
	"LFOS": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.lfos = v
		t.lfoPhase = 0
		return nil
	},
	"LFODL": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.lfodl = v
		return nil
	},
	"MOD": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.mod = v
		if v == 0 {
			t.lfoPhase = 0
		}
		return nil
	},
	"MODT": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.modt = v
		return nil
	},
	"TUNE": func(sg *StreamGenerator, t *Track) error {
		v, err := sg.readU8(t)
		if err != nil {
			return err
		}
		t.tune = int8(v&0x7F) - 64
		return nil
	},
	"XCMD": func(sg *StreamGenerator, t *Track) error {
		sub, err := sg.readU8(t)
		if err != nil {
			return err
		}
		arg, err := sg.readU8(t)
		if err != nil {
			return err
		}
		switch sub {
		case base.XCmdEchoVol:
			t.echoVol = arg
		case base.XCmdEchoLen:
			t.echoLen = arg
		}
		return nil
	},
	"EOT": func(sg *StreamGenerator, t *Track) error {
		key, has, err := sg.readAdHoc(t)
		if err != nil {
			return err
		}
		sg.releaseTies(t.Idx, key, has)
		return nil
	},
	"TIE": func(sg *StreamGenerator, t *Track) error {
		key, vel, err := sg.readNoteArgs(t, nil)
		if err != nil {
			return err
		}
		return sg.playNote(t, Note{MidiKey: key, Velocity: vel, Length: -1})
	},
}

// executeEvent runs a single bytecode event on t. Track errors are
// returned for the caller to contain.
func (sg *StreamGenerator) executeEvent(t *Track) error {
	cmd, err := sg.seq.rom.U8(t.pos)
	if err != nil {
		return errors.Wrapf(err, "track %d", t.Idx)
	}

	if cmd < 0x80 {
		// Running status: reuse the previous command byte
		if t.lastCmd < base.CmdVoice {
			return errors.Errorf("track %d: operand 0x%02X without command at 0x%X",
				t.Idx, cmd, t.pos)
		}
		cmd = t.lastCmd
	} else {
		t.pos++
		if cmd >= base.CmdVoice {
			t.lastCmd = cmd
		}
	}

	switch {
	case base.IsWait(cmd):
		t.delay = base.LengthTable[cmd-base.CmdWait0]
		return nil
	case base.IsNote(cmd):
		length := int8(base.LengthTable[cmd-base.CmdNote+1])
		key, vel, err := sg.readNoteArgs(t, &length)
		if err != nil {
			return err
		}
		return sg.playNote(t, Note{MidiKey: key, Velocity: vel, Length: length})
	}

	ev, ok := base.Events[cmd]
	if !ok {
		return errors.Errorf("track %d: unknown command 0x%02X at 0x%X", t.Idx, cmd, t.pos-1)
	}
	return cmdTable[ev.Name](sg, t)
}

func (sg *StreamGenerator) readU8(t *Track) (uint8, error) {
	v, err := sg.seq.rom.U8(t.pos)
	if err != nil {
		return 0, errors.Wrapf(err, "track %d", t.Idx)
	}
	t.pos++
	return v, nil
}

// readPtr reads an AGB bus pointer argument and translates it to a
// file offset.
func (sg *StreamGenerator) readPtr(t *Track) (uint32, error) {
	p, err := sg.seq.rom.U32(t.pos)
	if err != nil {
		return 0, errors.Wrapf(err, "track %d", t.Idx)
	}
	t.pos += 4
	off, err := sg.seq.rom.Ptr(p)
	if err != nil {
		return 0, errors.Wrapf(err, "track %d", t.Idx)
	}
	return off, nil
}

// readAdHoc consumes the next byte only if it is an operand (< 0x80).
func (sg *StreamGenerator) readAdHoc(t *Track) (uint8, bool, error) {
	v, err := sg.seq.rom.U8(t.pos)
	if err != nil {
		return 0, false, errors.Wrapf(err, "track %d", t.Idx)
	}
	if v >= 0x80 {
		return 0, false, nil
	}
	t.pos++
	return v, true, nil
}

// readNoteArgs parses the optional key/velocity/gate operands after
// a note or TIE command, maintaining the track's running values.
func (sg *StreamGenerator) readNoteArgs(t *Track, length *int8) (uint8, uint8, error) {
	key, has, err := sg.readAdHoc(t)
	if err != nil {
		return 0, 0, err
	}
	if has {
		t.lastKey = key
		vel, hasVel, err := sg.readAdHoc(t)
		if err != nil {
			return 0, 0, err
		}
		if hasVel {
			t.lastVel = vel
			if length != nil {
				gate, hasGate, err := sg.readAdHoc(t)
				if err != nil {
					return 0, 0, err
				}
				if hasGate && int(*length)+int(gate) <= 96 {
					*length += int8(gate)
				}
			}
		}
	}
	return t.lastKey, t.lastVel, nil
}
