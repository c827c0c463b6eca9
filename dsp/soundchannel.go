package dsp

import (
	"math"

	"github.com/handegar/mp2kemu/rom"
)

// A SoundChannel plays one PCM instrument sample through the
// configured resampler.
type SoundChannel struct {
	trackIdx uint8
	note     Note
	env      Envelope
	sInfo    rom.Sample
	rs       Resampler
	pos      uint32 // source sample position of the next fetch
	freq     float32
	fixed    bool
	prio     uint8
	seqNo    uint32 // allocation order, used by the preemption policy

	vol       uint8
	pan       int8
	instPan   int8
	fromVolL  float32
	fromVolR  float32
	volSeeded bool

	procBuffer []float32
	stopped    bool
}

func NewSoundChannel(trackIdx uint8, sInfo rom.Sample, adsr ADSR, note Note,
	fixed bool, prio uint8, seqNo uint32, rsType ResamplerType, blockSamples uint32) *SoundChannel {

	return &SoundChannel{
		trackIdx:   trackIdx,
		note:       note,
		env:        NewEnvelope(adsr),
		sInfo:      sInfo,
		rs:         NewResampler(rsType),
		fixed:      fixed,
		prio:       prio,
		seqNo:      seqNo,
		procBuffer: make([]float32, blockSamples),
	}
}

func (c *SoundChannel) TrackIdx() uint8          { return c.trackIdx }
func (c *SoundChannel) Note() *Note              { return &c.note }
func (c *SoundChannel) State() EnvState          { return c.env.State() }
func (c *SoundChannel) Priority() uint8          { return c.prio }
func (c *SoundChannel) SeqNo() uint32            { return c.seqNo }
func (c *SoundChannel) CGBKind() (CGBType, bool) { return 0, false }

func (c *SoundChannel) Release(fast bool) {
	c.env.Release(fast)
}

func (c *SoundChannel) Kill() {
	c.env.Kill()
}

// TickNote counts down a finite note length; returns true while the
// note remains held.
func (c *SoundChannel) TickNote() bool {
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

// SetInstPan applies a per-instrument pan offset (drumkit entries).
func (c *SoundChannel) SetInstPan(pan int8) {
	c.instPan = pan
}

func (c *SoundChannel) SetVol(vol uint8, pan int8) {
	if c.env.State() < EnvRelease {
		c.vol = vol
		c.pan = clampPan(int(pan) + int(c.instPan))
	}
}

func clampPan(pan int) int8 {
	if pan < -64 {
		pan = -64
	}
	if pan > 63 {
		pan = 63
	}
	return int8(pan)
}

// SetPitch updates the playback frequency. pitch is in 64ths of a
// semitone relative to the sample's mid-C rate.
func (c *SoundChannel) SetPitch(pitch int16) {
	if c.fixed {
		c.freq = c.sInfo.MidCfreq
		return
	}
	c.freq = c.sInfo.MidCfreq * float32(math.Pow(2.0,
		float64(int(c.note.MidiKey)-60)/12.0+float64(pitch)/768.0))
}

// volTargets derives the stereo gains for the current envelope level.
func (c *SoundChannel) volTargets() (float32, float32) {
	base := float32(c.note.Velocity) / 127.0 * float32(c.vol) / 127.0 *
		float32(c.env.Level()) / 255.0
	panF := (float32(c.pan) + 64.0) / 128.0
	return base * (1.0 - panF), base * panF
}

func (c *SoundChannel) fetch(fetchBuffer *[]float32, samplesRequired int) bool {
	if c.stopped {
		return false
	}
	data := c.sInfo.Data
	for samplesRequired > 0 {
		if c.pos >= c.sInfo.EndPos {
			if !c.sInfo.LoopEnabled {
				c.stopped = true
				return false
			}
			c.pos = c.sInfo.LoopPos
		}
		avail := c.sInfo.EndPos - c.pos
		take := uint32(samplesRequired)
		if take > avail {
			take = avail
		}
		for i := uint32(0); i < take; i++ {
			*fetchBuffer = append(*fetchBuffer, float32(int8(data[c.pos+i]))/128.0)
		}
		c.pos += take
		samplesRequired -= int(take)
	}
	return true
}

// Process renders one block. PCM envelopes step once per frame;
// volume is interpolated across the block to avoid zipper noise.
func (c *SoundChannel) Process(out []float32, args *MixingArgs) {
	if c.env.State() == EnvDead {
		return
	}
	c.env.Step()
	if c.env.State() == EnvDead {
		return
	}

	toVolL, toVolR := c.volTargets()
	toVolL *= args.Vol
	toVolR *= args.Vol
	if !c.volSeeded {
		// First frame: no previous gain to fade from
		c.fromVolL = toVolL
		c.fromVolR = toVolR
		c.volSeeded = true
	}

	n := len(out) / 2
	buf := c.procBuffer[:n]
	phaseInc := c.freq * args.SampleRateInv
	ok := c.rs.Process(buf, phaseInc, c.fetch)

	volL := c.fromVolL
	volR := c.fromVolR
	deltaL := (toVolL - c.fromVolL) / float32(n)
	deltaR := (toVolR - c.fromVolR) / float32(n)
	for i := 0; i < n; i++ {
		out[2*i] += buf[i] * volL
		out[2*i+1] += buf[i] * volR
		volL += deltaL
		volR += deltaR
	}
	c.fromVolL = toVolL
	c.fromVolR = toVolR

	if !ok {
		// Sample data ran out without a loop: ring out through a
		// fast release instead of cutting straight to DEAD.
		c.Release(true)
	}
}
