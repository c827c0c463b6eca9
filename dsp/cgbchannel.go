package dsp

import (
	"math"
)

// The four 8-sample duty patterns of the square channels.
var dutyPatterns = [4][8]float32{
	{0.5, -0.5, -0.5, -0.5, -0.5, -0.5, -0.5, -0.5}, // 12.5%
	{0.5, 0.5, -0.5, -0.5, -0.5, -0.5, -0.5, -0.5},  // 25%
	{0.5, 0.5, 0.5, 0.5, -0.5, -0.5, -0.5, -0.5},    // 50%
	{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, -0.5, -0.5},      // 75%
}

type cgbPan uint8

const (
	cgbPanLeft cgbPan = iota
	cgbPanCenter
	cgbPanRight
)

// cgbChannel carries the state shared by the square, wave and noise
// voices: envelope, hard-panned stereo position and the 4-bit volume
// quantization of the CGB hardware.
type cgbChannel struct {
	trackIdx uint8
	note     Note
	env      Envelope
	kind     CGBType
	rs       Resampler
	pos      uint32
	freq     float32

	vol       uint8
	pan       cgbPan
	instPan   int8
	fromVolL  float32
	fromVolR  float32
	volSeeded bool

	procBuffer []float32
	stopped    bool
}

func (c *cgbChannel) init(trackIdx uint8, kind CGBType, adsr ADSR, note Note, blockSamples uint32) {
	c.trackIdx = trackIdx
	c.kind = kind
	c.note = note
	c.env = NewEnvelope(adsr)
	c.rs = NewSincResampler()
	c.pan = cgbPanCenter
	c.procBuffer = make([]float32, blockSamples)
}

func (c *cgbChannel) TrackIdx() uint8          { return c.trackIdx }
func (c *cgbChannel) Note() *Note              { return &c.note }
func (c *cgbChannel) State() EnvState          { return c.env.State() }
func (c *cgbChannel) CGBKind() (CGBType, bool) { return c.kind, true }

func (c *cgbChannel) Release(fast bool) {
	c.env.Release(fast)
}

func (c *cgbChannel) Kill() {
	c.env.Kill()
}

func (c *cgbChannel) TickNote() bool {
	if c.env.State() >= EnvRelease {
		return false
	}
	if c.note.Length > 0 {
		c.note.Length--
		if c.note.Length == 0 {
			c.Release(false)
			return false
		}
	}
	return true
}

func (c *cgbChannel) SetInstPan(pan int8) {
	c.instPan = pan
}

// SetVol quantizes the pan to the hardware's ternary left/center/right
// position and stores the track volume; volTargets maps that volume to
// the 4-bit channel volume.
func (c *cgbChannel) SetVol(vol uint8, pan int8) {
	if c.env.State() >= EnvRelease {
		return
	}
	pan = clampPan(int(pan) + int(c.instPan))
	switch {
	case pan < -21:
		c.pan = cgbPanLeft
	case pan > 21:
		c.pan = cgbPanRight
	default:
		c.pan = cgbPanCenter
	}
	c.vol = vol
}

// volTargets maps the CGB gain at the end of quarter q: 4-bit channel
// volume through VolLut, scaled by the envelope level interpolated
// from the previous frame's level to the current one.
func (c *cgbChannel) volTargets(q int) (float32, float32) {
	chanVol := uint32(c.vol) * uint32(c.note.Velocity) >> 10
	if chanVol > 15 {
		chanVol = 15
	}
	from := float32(c.env.FromLevel())
	to := float32(c.env.Level())
	level := from + (to-from)*float32(q+1)/InterFrames
	amp := float32(VolLut[chanVol]) / 7.0 * level / 255.0
	var volL, volR float32
	if c.pan != cgbPanRight {
		volL = amp
	}
	if c.pan != cgbPanLeft {
		volR = amp
	}
	return volL, volR
}

// processQuarters renders one block in quarter-frame chunks, stepping
// the envelope at each chunk boundary.
func (c *cgbChannel) processQuarters(out []float32, args *MixingArgs, phaseInc float32, fetch FetchFn) {
	n := len(out) / 2
	done := 0
	for q := 0; q < InterFrames; q++ {
		c.env.QuarterStep()
		if c.env.State() == EnvDead {
			return
		}

		qn := n * (q + 1) / InterFrames
		chunk := qn - done
		if chunk <= 0 {
			continue
		}

		toVolL, toVolR := c.volTargets(q)
		toVolL *= args.Vol
		toVolR *= args.Vol
		if !c.volSeeded {
			c.fromVolL = toVolL
			c.fromVolR = toVolR
			c.volSeeded = true
		}

		buf := c.procBuffer[:chunk]
		ok := c.rs.Process(buf, phaseInc, fetch)

		volL := c.fromVolL
		volR := c.fromVolR
		deltaL := (toVolL - c.fromVolL) / float32(chunk)
		deltaR := (toVolR - c.fromVolR) / float32(chunk)
		for i := 0; i < chunk; i++ {
			out[2*(done+i)] += buf[i] * volL
			out[2*(done+i)+1] += buf[i] * volR
			volL += deltaL
			volR += deltaR
		}
		c.fromVolL = toVolL
		c.fromVolR = toVolR
		done = qn

		if !ok {
			c.env.Kill()
			return
		}
	}
}

//
// Square
//

type SquareChannel struct {
	cgbChannel
	pat *[8]float32
}

func NewSquareChannel(trackIdx uint8, kind CGBType, duty WaveDuty, adsr ADSR, note Note, blockSamples uint32) *SquareChannel {
	c := &SquareChannel{}
	c.init(trackIdx, kind, adsr, note, blockSamples)
	c.pat = &dutyPatterns[duty&3]
	return c
}

// SetPitch tunes the 8-step pattern rate so that key 69 lands on
// 440 Hz (3520 pattern samples per second / 8 steps).
func (c *SquareChannel) SetPitch(pitch int16) {
	c.freq = 3520.0 * float32(math.Pow(2.0,
		float64(int(c.note.MidiKey)-69)/12.0+float64(pitch)/768.0))
}

func (c *SquareChannel) fetch(fetchBuffer *[]float32, samplesRequired int) bool {
	for i := 0; i < samplesRequired; i++ {
		*fetchBuffer = append(*fetchBuffer, c.pat[c.pos&7])
		c.pos++
	}
	return true
}

func (c *SquareChannel) Process(out []float32, args *MixingArgs) {
	if c.env.State() == EnvDead {
		return
	}
	c.processQuarters(out, args, c.freq*args.SampleRateInv, c.fetch)
}

//
// Wave
//

type WaveChannel struct {
	cgbChannel
	waveBuffer [32]float32
}

// NewWaveChannel unpacks the 32 nibbles once at note start; further
// processing cycles the cached buffer.
func NewWaveChannel(trackIdx uint8, waveData []byte, adsr ADSR, note Note, blockSamples uint32) *WaveChannel {
	c := &WaveChannel{}
	c.init(trackIdx, CGBWave, adsr, note, blockSamples)
	c.rs = NewResampler(ResLinear)
	for i := 0; i < 16; i++ {
		b := waveData[i]
		c.waveBuffer[2*i] = (float32(b>>4) - 7.5) / 7.5
		c.waveBuffer[2*i+1] = (float32(b&0xF) - 7.5) / 7.5
	}
	return c
}

func (c *WaveChannel) SetPitch(pitch int16) {
	c.freq = 7040.0 * float32(math.Pow(2.0,
		float64(int(c.note.MidiKey)-69)/12.0+float64(pitch)/768.0))
}

func (c *WaveChannel) fetch(fetchBuffer *[]float32, samplesRequired int) bool {
	for i := 0; i < samplesRequired; i++ {
		*fetchBuffer = append(*fetchBuffer, c.waveBuffer[c.pos&31])
		c.pos++
	}
	return true
}

func (c *WaveChannel) Process(out []float32, args *MixingArgs) {
	if c.env.State() == EnvDead {
		return
	}
	c.processQuarters(out, args, c.freq*args.SampleRateInv, c.fetch)
}

//
// Noise
//

type NoiseChannel struct {
	cgbChannel
	patt    NoisePatt
	lfsr    uint16
	lfsrClk float32
}

func NewNoiseChannel(trackIdx uint8, patt NoisePatt, adsr ADSR, note Note, blockSamples uint32) *NoiseChannel {
	c := &NoiseChannel{patt: patt}
	c.init(trackIdx, CGBNoise, adsr, note, blockSamples)
	if patt == NoiseRough {
		c.lfsr = 0x7F
	} else {
		c.lfsr = 0x7FFF
	}
	return c
}

// SetPitch maps the key to the LFSR shift clock. The noise slope is
// three octaves per keyboard octave, clamped to the hardware range.
func (c *NoiseChannel) SetPitch(pitch int16) {
	f := 4096.0 * float32(math.Pow(8.0,
		float64(int(c.note.MidiKey)-60)/12.0+float64(pitch)/768.0))
	if f < 8.0 {
		f = 8.0
	}
	if f > 524288.0 {
		f = 524288.0
	}
	c.freq = f
}

// stepLFSR advances the shift register once. Feedback is the XOR of
// the two lowest bits, fed into the top.
func stepLFSR(r uint16, patt NoisePatt) uint16 {
	fb := (r ^ (r >> 1)) & 1
	if patt == NoiseRough {
		return (r >> 1) | fb<<6
	}
	return (r >> 1) | fb<<14
}

// fetch produces source samples at the fixed 65536 Hz oversampling
// rate; the LFSR itself is clocked at the tuned frequency.
func (c *NoiseChannel) fetch(fetchBuffer *[]float32, samplesRequired int) bool {
	step := c.freq / NoiseSamplingFreq
	for i := 0; i < samplesRequired; i++ {
		c.lfsrClk += step
		for c.lfsrClk >= 1.0 {
			c.lfsr = stepLFSR(c.lfsr, c.patt)
			c.lfsrClk -= 1.0
		}
		if c.lfsr&1 != 0 {
			*fetchBuffer = append(*fetchBuffer, 0.5)
		} else {
			*fetchBuffer = append(*fetchBuffer, -0.5)
		}
	}
	return true
}

func (c *NoiseChannel) Process(out []float32, args *MixingArgs) {
	if c.env.State() == EnvDead {
		return
	}
	c.processQuarters(out, args, NoiseSamplingFreq*args.SampleRateInv, c.fetch)
}
