package rom

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// AGB bus address of the cartridge ROM window.
const AGBBase = 0x08000000

// Max cartridge size (32MB)
const maxRomSize = 0x02000000

// A Rom is a read-only GBA cartridge image. All offsets handed out by
// its accessors are file offsets; bus pointers (0x08xxxxxx) are
// translated with Ptr().
type Rom struct {
	data []byte
}

func New(data []byte) (*Rom, error) {
	if len(data) < 0xC0 {
		return nil, errors.Errorf("ROM too small (%d bytes)", len(data))
	}
	if len(data) > maxRomSize {
		return nil, errors.Errorf("ROM too large (%d bytes)", len(data))
	}
	return &Rom{data: data}, nil
}

func Load(filename string) (*Rom, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "opening ROM")
	}
	defer file.Close()

	stats, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat ROM")
	}

	bytes := make([]byte, stats.Size())
	buf := bufio.NewReader(file)
	if _, err := io.ReadFull(buf, bytes); err != nil {
		return nil, errors.Wrap(err, "reading ROM")
	}

	return New(bytes)
}

func (r *Rom) Size() uint32 {
	return uint32(len(r.data))
}

// ValidPointer reports whether p is an AGB bus pointer into this image.
func (r *Rom) ValidPointer(p uint32) bool {
	return p >= AGBBase && p < AGBBase+uint32(len(r.data))
}

// Ptr translates an AGB bus pointer to a file offset.
func (r *Rom) Ptr(p uint32) (uint32, error) {
	if !r.ValidPointer(p) {
		return 0, errors.Errorf("pointer 0x%08X outside ROM", p)
	}
	return p - AGBBase, nil
}

func (r *Rom) U8(off uint32) (uint8, error) {
	if off >= uint32(len(r.data)) {
		return 0, errors.Errorf("read of 0x%X past end of ROM", off)
	}
	return r.data[off], nil
}

func (r *Rom) S8(off uint32) (int8, error) {
	v, err := r.U8(off)
	return int8(v), err
}

func (r *Rom) U16(off uint32) (uint16, error) {
	if off+2 > uint32(len(r.data)) {
		return 0, errors.Errorf("read of 0x%X past end of ROM", off)
	}
	return binary.LittleEndian.Uint16(r.data[off:]), nil
}

func (r *Rom) U32(off uint32) (uint32, error) {
	if off+4 > uint32(len(r.data)) {
		return 0, errors.Errorf("read of 0x%X past end of ROM", off)
	}
	return binary.LittleEndian.Uint32(r.data[off:]), nil
}

// Slice borrows n bytes at off. The returned slice aliases the image
// and must be treated as read-only.
func (r *Rom) Slice(off uint32, n uint32) ([]byte, error) {
	if off+n > uint32(len(r.data)) || off+n < off {
		return nil, errors.Errorf("slice 0x%X+0x%X past end of ROM", off, n)
	}
	return r.data[off : off+n : off+n], nil
}

// A Sample describes one PCM instrument sample resident in ROM.
// Data holds signed 8-bit samples and aliases the image.
type Sample struct {
	MidCfreq    float32
	LoopEnabled bool
	LoopPos     uint32
	EndPos      uint32
	Data        []byte
}

// Sample decodes the 16-byte sample header at bus pointer p.
// Layout: u32 loop flags, u32 pitch (mid-C rate << 10), u32 loop
// start, u32 length, then the sample bytes.
func (r *Rom) Sample(p uint32) (Sample, error) {
	var s Sample
	off, err := r.Ptr(p)
	if err != nil {
		return s, errors.Wrap(err, "sample header")
	}
	loopMode, err := r.U32(off)
	if err != nil {
		return s, err
	}
	pitch, err := r.U32(off + 4)
	if err != nil {
		return s, err
	}
	loopPos, err := r.U32(off + 8)
	if err != nil {
		return s, err
	}
	endPos, err := r.U32(off + 12)
	if err != nil {
		return s, err
	}
	if endPos == 0 || endPos > uint32(len(r.data)) {
		return s, errors.Errorf("sample at 0x%08X has bad length 0x%X", p, endPos)
	}
	data, err := r.Slice(off+16, endPos)
	if err != nil {
		return s, errors.Wrapf(err, "sample data at 0x%08X", p)
	}

	s.MidCfreq = float32(pitch) / 1024.0
	s.LoopEnabled = loopMode&0x40000000 != 0
	s.LoopPos = loopPos
	s.EndPos = endPos
	s.Data = data
	if s.LoopEnabled && s.LoopPos > s.EndPos {
		return s, errors.Errorf("sample at 0x%08X loops past its end", p)
	}
	if s.MidCfreq <= 0 || float64(s.MidCfreq) > float64(math.MaxInt32) {
		return s, errors.Errorf("sample at 0x%08X has bad mid-C rate", p)
	}
	return s, nil
}

// WaveData borrows the 16 packed bytes (32 nibbles) of a CGB
// waveform at bus pointer p.
func (r *Rom) WaveData(p uint32) ([]byte, error) {
	off, err := r.Ptr(p)
	if err != nil {
		return nil, errors.Wrap(err, "wave data")
	}
	return r.Slice(off, 16)
}
