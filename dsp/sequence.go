package dsp

import (
	"github.com/pkg/errors"

	"github.com/handegar/mp2kemu/base"
	"github.com/handegar/mp2kemu/rom"
)

// Tempo before any TEMPO command: 75 BPM (one tick every two
// frames). A "TEMPO 75" event decodes to 150 BPM, twice this rate.
const defaultTempo = 75

// A Sequence owns the tracks of one song and the global tempo state.
// It borrows the ROM image, which must outlive it.
type Sequence struct {
	rom  *rom.Rom
	bank *rom.Bank

	tracks []*Track

	tempo     uint16 // BPM
	bpmStack  uint32
	tickCount uint64

	songPos    uint32
	blocks     uint8
	prio       uint8
	reverbByte uint8
}

// NewSequence decodes the song header at file offset songPos.
// Header layout: u8 track count, u8 block count, u8 priority,
// u8 reverb, u32 bank pointer, then one u32 track pointer each.
func NewSequence(r *rom.Rom, songPos uint32, trackLimit uint8) (*Sequence, error) {
	if trackLimit == 0 || trackLimit > 16 {
		return nil, errors.Errorf("track limit %d out of range", trackLimit)
	}

	// The tick accumulator starts one tick short of full so the
	// first frame always dispatches the tracks' opening events.
	s := &Sequence{
		rom:      r,
		songPos:  songPos,
		tempo:    defaultTempo,
		bpmStack: bpmPerFrame - defaultTempo,
	}

	nTracks, err := r.U8(songPos)
	if err != nil {
		return nil, errors.Wrap(err, "song header")
	}
	if nTracks > trackLimit {
		nTracks = trackLimit
	}
	if s.blocks, err = r.U8(songPos + 1); err != nil {
		return nil, err
	}
	if s.prio, err = r.U8(songPos + 2); err != nil {
		return nil, err
	}
	if s.reverbByte, err = r.U8(songPos + 3); err != nil {
		return nil, err
	}

	bankPtr, err := r.U32(songPos + 4)
	if err != nil {
		return nil, err
	}
	bankOff, err := r.Ptr(bankPtr)
	if err != nil {
		return nil, errors.Wrap(err, "song bank pointer")
	}
	s.bank = rom.NewBank(r, bankOff)

	for i := uint8(0); i < nTracks; i++ {
		p, err := r.U32(songPos + base.SongHeaderSize + uint32(i)*4)
		if err != nil {
			return nil, err
		}
		off, err := r.Ptr(p)
		if err != nil {
			return nil, errors.Wrapf(err, "track %d pointer", i)
		}
		trk := newTrack(i, off)
		trk.prio = s.prio
		s.tracks = append(s.tracks, trk)
	}
	if len(s.tracks) == 0 {
		return nil, errors.Errorf("song at 0x%X has no tracks", songPos)
	}

	return s, nil
}

func (s *Sequence) Tracks() []*Track {
	return s.tracks
}

func (s *Sequence) Rom() *rom.Rom {
	return s.rom
}

func (s *Sequence) Bank() *rom.Bank {
	return s.bank
}

// Tempo returns the current tempo in BPM.
func (s *Sequence) Tempo() uint16 {
	return s.tempo
}

func (s *Sequence) TickCount() uint64 {
	return s.tickCount
}

// ReverbOverride returns the song's own reverb level if the header
// sets one (bit 7), else ok=false.
func (s *Sequence) ReverbOverride() (uint8, bool) {
	if s.reverbByte&0x80 != 0 {
		return s.reverbByte & 0x7F, true
	}
	return 0, false
}

// AnyRunning reports whether at least one track still executes.
func (s *Sequence) AnyRunning() bool {
	for _, t := range s.tracks {
		if t.running {
			return true
		}
	}
	return false
}

// Reset rewinds every track to its start position and restores the
// default tempo.
func (s *Sequence) Reset() error {
	s.tempo = defaultTempo
	s.bpmStack = bpmPerFrame - defaultTempo
	s.tickCount = 0
	for i, t := range s.tracks {
		p, err := s.rom.U32(s.songPos + base.SongHeaderSize + uint32(i)*4)
		if err != nil {
			return err
		}
		off, err := s.rom.Ptr(p)
		if err != nil {
			return err
		}
		t.reset(off)
		t.prio = s.prio
	}
	return nil
}
