package dsp

import (
	"encoding/binary"

	"github.com/handegar/mp2kemu/rom"
)

// Test ROM builder. Appends blobs and hands out AGB bus pointers.
type romBuilder struct {
	data []byte
}

func newRomBuilder() *romBuilder {
	// Zeroed header area so the image passes the size check
	return &romBuilder{data: make([]byte, 0xC0)}
}

func (b *romBuilder) add(bytes ...byte) uint32 {
	off := uint32(len(b.data))
	b.data = append(b.data, bytes...)
	return off
}

func (b *romBuilder) addU32(vals ...uint32) uint32 {
	off := uint32(len(b.data))
	for _, v := range vals {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v)
		b.data = append(b.data, tmp[:]...)
	}
	return off
}

func busPtr(off uint32) uint32 {
	return off + rom.AGBBase
}

func u32le(v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return tmp[:]
}

// addInstrument appends one 12-byte bank entry.
func (b *romBuilder) addInstrument(typ byte, key byte, pan byte, data uint32, adsr ADSR) uint32 {
	off := b.add(typ, key, 0, pan)
	b.addU32(data)
	b.add(adsr.Att, adsr.Dec, adsr.Sus, adsr.Rel)
	return off
}

// addSample appends a PCM sample header plus payload and returns the
// bus pointer to hand to an instrument entry.
func (b *romBuilder) addSample(midCfreq float32, loop bool, loopPos uint32, payload []byte) uint32 {
	off := uint32(len(b.data))
	loopMode := uint32(0)
	if loop {
		loopMode = 0x40000000
	}
	b.addU32(loopMode, uint32(midCfreq*1024.0), loopPos, uint32(len(payload)))
	b.data = append(b.data, payload...)
	return busPtr(off)
}

// addSong appends a song header for the given track byte codes and
// returns its file offset.
func (b *romBuilder) addSong(bankOff uint32, trackCode ...[]byte) uint32 {
	var trackPtrs []uint32
	for _, code := range trackCode {
		trackPtrs = append(trackPtrs, busPtr(b.add(code...)))
	}
	song := b.add(byte(len(trackCode)), 0, 0, 0)
	b.addU32(busPtr(bankOff))
	b.addU32(trackPtrs...)
	return song
}

func (b *romBuilder) build() *rom.Rom {
	r, err := rom.New(b.data)
	if err != nil {
		panic(err)
	}
	return r
}

// makeGenerator assembles the whole chain for one song.
func makeGenerator(b *romBuilder, songPos uint32, cfg GameConfig) (*Sequence, *StreamGenerator, error) {
	seq, err := NewSequence(b.build(), songPos, cfg.TrackLimit)
	if err != nil {
		return nil, nil, err
	}
	sg, err := NewStreamGenerator(seq, cfg)
	if err != nil {
		return nil, nil, err
	}
	return seq, sg, nil
}

// blockEnergy sums squared samples over every track buffer.
func blockEnergy(buffers [][]float32) float64 {
	var e float64
	for _, buf := range buffers {
		for _, s := range buf {
			e += float64(s) * float64(s)
		}
	}
	return e
}
