package dsp

import (
	"github.com/pkg/errors"

	"github.com/handegar/mp2kemu/rom"
)

// A Voice is one sounding channel in the pool: a PCM voice or one of
// the CGB kinds. The pool owns its voices; a retired (DEAD) voice is
// dropped at the end of the block.
type Voice interface {
	Process(out []float32, args *MixingArgs)
	TrackIdx() uint8
	Note() *Note
	TickNote() bool
	Release(fast bool)
	Kill()
	SetVol(vol uint8, pan int8)
	SetPitch(pitch int16)
	State() EnvState
	CGBKind() (CGBType, bool)
}

// The StreamGenerator drives the sequence one frame at a time,
// allocates and retires voices, mixes them into per-track stereo
// buffers and applies each track's reverb.
type StreamGenerator struct {
	seq *Sequence
	cfg GameConfig

	rate         uint32
	blockSamples uint32
	args         MixingArgs

	trackBuffers [][]float32
	scratch      []float32
	reverbs      []Reverb

	voices   []Voice
	voiceSeq uint32

	blocksRendered uint64
	ended          bool
}

func NewStreamGenerator(seq *Sequence, cfg GameConfig) (*StreamGenerator, error) {
	if int(cfg.EngineFreq) >= len(SampleRateLut) || SampleRateLut[cfg.EngineFreq] == 0 {
		return nil, errors.Errorf("invalid engine frequency index %d", cfg.EngineFreq)
	}
	if cfg.PCMVol > 15 {
		return nil, errors.Errorf("PCM volume %d out of range", cfg.PCMVol)
	}
	if cfg.PolyphonyLimit == 0 {
		return nil, errors.New("polyphony limit must be at least 1")
	}

	sg := &StreamGenerator{seq: seq, cfg: cfg}
	sg.rate = SampleRateLut[cfg.EngineFreq]
	sg.blockSamples = sg.rate / FrameRate
	sg.args = MixingArgs{
		Vol:              float32(cfg.PCMVol+1) / 16.0,
		SampleRateInv:    1.0 / float32(sg.rate),
		SamplesPerBufInv: 1.0 / float32(sg.blockSamples),
	}

	revLevel := cfg.EngineRev
	if lvl, ok := seq.ReverbOverride(); ok {
		revLevel = lvl
	}
	intensity := float32(revLevel&0x7F) / 128.0

	for range seq.Tracks() {
		sg.trackBuffers = append(sg.trackBuffers, make([]float32, 2*sg.blockSamples))
		sg.reverbs = append(sg.reverbs, NewReverb(cfg.RevType, intensity, sg.blockSamples))
	}
	sg.scratch = make([]float32, 2*sg.blockSamples)

	return sg, nil
}

// GetBufferUnitCount returns the number of samples per track channel
// in one block.
func (sg *StreamGenerator) GetBufferUnitCount() uint32 {
	return sg.blockSamples
}

func (sg *StreamGenerator) GetSampleRate() uint32 {
	return sg.rate
}

// HasStreamEnded reports whether the song has naturally terminated:
// every track is done and every voice has died out.
func (sg *StreamGenerator) HasStreamEnded() bool {
	return sg.ended
}

// ActiveVoices returns the current voice count (diagnostics only).
func (sg *StreamGenerator) ActiveVoices() int {
	return len(sg.voices)
}

// VoicesOnTrack counts the sounding voices of one track.
func (sg *StreamGenerator) VoicesOnTrack(idx uint8) int {
	n := 0
	for _, v := range sg.voices {
		if v.TrackIdx() == idx {
			n++
		}
	}
	return n
}

func (sg *StreamGenerator) Sequence() *Sequence {
	return sg.seq
}

// BlocksRendered counts ProcessAndGetAudio calls since construction.
func (sg *StreamGenerator) BlocksRendered() uint64 {
	return sg.blocksRendered
}

// ProcessAndGetAudio renders one block. The returned slice is owned
// by the generator and reused across calls: one interleaved stereo
// buffer of 2*GetBufferUnitCount() samples per track.
func (sg *StreamGenerator) ProcessAndGetAudio() [][]float32 {
	for _, buf := range sg.trackBuffers {
		for i := range buf {
			buf[i] = 0.0
		}
	}

	if !sg.ended {
		sg.processSequenceFrame()
		sg.renderBlock()
		sg.retireVoices()
		sg.ended = !sg.seq.AnyRunning() && len(sg.voices) == 0
	}
	sg.blocksRendered++

	return sg.trackBuffers
}

// processSequenceFrame advances tempo time by one frame and runs the
// due sequencer ticks.
func (sg *StreamGenerator) processSequenceFrame() {
	sg.seq.bpmStack += uint32(sg.seq.tempo)
	for sg.seq.bpmStack >= bpmPerFrame {
		sg.seq.bpmStack -= bpmPerFrame
		sg.tick()
	}
}

func (sg *StreamGenerator) tick() {
	// Gates count down before event dispatch so a fresh note keeps
	// its full length.
	for _, v := range sg.voices {
		v.TickNote()
	}

	for _, t := range sg.seq.tracks {
		if !t.running {
			continue
		}
		for t.delay == 0 && t.running {
			if err := sg.executeEvent(t); err != nil {
				sg.releaseTrackVoices(t.Idx, false)
				t.fail(err)
			}
		}
		if t.delay > 0 {
			t.delay--
		}
		t.tickLFO()
		t.tickCount++
	}

	// Propagate the per-tick track parameters into the voices.
	for _, v := range sg.voices {
		t := sg.seq.tracks[v.TrackIdx()]
		v.SetVol(t.GetVol(), t.GetPan())
		v.SetPitch(t.GetPitch())
	}

	sg.seq.tickCount++
}

func (sg *StreamGenerator) renderBlock() {
	for ti := range sg.seq.tracks {
		buf := sg.trackBuffers[ti]
		if sg.seq.tracks[ti].Muted {
			// Muted tracks still advance their voices, into a
			// buffer that is thrown away.
			for i := range sg.scratch {
				sg.scratch[i] = 0.0
			}
			buf = sg.scratch
		}
		for _, v := range sg.voices {
			if int(v.TrackIdx()) != ti {
				continue
			}
			v.Process(buf, &sg.args)
		}
		sg.reverbs[ti].Process(sg.trackBuffers[ti], sg.blockSamples)
	}
}

func (sg *StreamGenerator) retireVoices() {
	alive := sg.voices[:0]
	for _, v := range sg.voices {
		if v.State() != EnvDead {
			alive = append(alive, v)
		}
	}
	for i := len(alive); i < len(sg.voices); i++ {
		sg.voices[i] = nil
	}
	sg.voices = alive
}

// releaseTrackVoices releases every sounding voice of a track.
func (sg *StreamGenerator) releaseTrackVoices(trackIdx uint8, fast bool) {
	for _, v := range sg.voices {
		if v.TrackIdx() == trackIdx {
			v.Release(fast)
		}
	}
}

// releaseTies ends TIE notes on a track. With hasKey set only ties
// of that key are released.
func (sg *StreamGenerator) releaseTies(trackIdx uint8, key uint8, hasKey bool) {
	for _, v := range sg.voices {
		if v.TrackIdx() != trackIdx || v.State() >= EnvRelease {
			continue
		}
		if v.Note().Length >= 0 {
			continue
		}
		if hasKey && v.Note().MidiKey != key {
			continue
		}
		v.Release(false)
	}
}

// playNote resolves the track's instrument for the struck key and
// allocates the matching voice.
func (sg *StreamGenerator) playNote(t *Track, note Note) error {
	key := int(note.MidiKey) + int(t.keyShift)
	if key < 0 {
		key = 0
	}
	if key > 127 {
		key = 127
	}
	note.MidiKey = uint8(key)

	inst, err := sg.seq.bank.Lookup(t.prog, note.MidiKey)
	if err != nil {
		return errors.Wrapf(err, "track %d: note on instrument %d", t.Idx, t.prog)
	}
	if inst.ForcedKey != 0 {
		note.MidiKey = inst.ForcedKey
	}
	adsr := ADSR{Att: inst.Attack, Dec: inst.Decay, Sus: inst.Sustain, Rel: inst.Release}

	// Modulation delay restarts with each note
	t.lfodlCount = t.lfodl

	var v Voice
	switch inst.Type {
	case rom.InstrPCM:
		sample, err := sg.seq.rom.Sample(inst.SamplePtr)
		if err != nil {
			return errors.Wrapf(err, "track %d: instrument %d", t.Idx, t.prog)
		}
		if !sg.reservePCMVoice() {
			return nil // polyphony exhausted, note dropped
		}
		c := NewSoundChannel(t.Idx, sample, adsr, note, inst.FixedPitch,
			t.prio, sg.voiceSeq, sg.cfg.PCMResampler, sg.blockSamples)
		if inst.PanOverride {
			c.SetInstPan(inst.ForcedPan)
		}
		v = c
	case rom.InstrSquare1:
		v = sg.newCGBVoice(t, CGBSquare1, inst, adsr, note)
	case rom.InstrSquare2:
		v = sg.newCGBVoice(t, CGBSquare2, inst, adsr, note)
	case rom.InstrWave:
		v = sg.newCGBVoice(t, CGBWave, inst, adsr, note)
	case rom.InstrNoise:
		v = sg.newCGBVoice(t, CGBNoise, inst, adsr, note)
	default:
		return errors.Errorf("track %d: instrument %d is not playable", t.Idx, t.prog)
	}
	if v == nil {
		return nil
	}

	sg.voiceSeq++
	sg.voices = append(sg.voices, v)
	v.SetVol(t.GetVol(), t.GetPan())
	v.SetPitch(t.GetPitch())
	return nil
}

// newCGBVoice preempts the previous voice of the same CGB kind on
// the track (fast release, like the hardware taking over a channel)
// and builds the replacement.
func (sg *StreamGenerator) newCGBVoice(t *Track, kind CGBType, inst rom.Instrument, adsr ADSR, note Note) Voice {
	for _, v := range sg.voices {
		if v.TrackIdx() != t.Idx {
			continue
		}
		if k, isCGB := v.CGBKind(); isCGB && k == kind {
			v.Release(true)
		}
	}

	var v Voice
	switch kind {
	case CGBSquare1, CGBSquare2:
		v = NewSquareChannel(t.Idx, kind, WaveDuty(inst.Duty), adsr, note, sg.blockSamples)
	case CGBWave:
		waveData, err := sg.seq.rom.WaveData(inst.WavePtr)
		if err != nil {
			t.fail(errors.Wrapf(err, "track %d: wave instrument", t.Idx))
			return nil
		}
		v = NewWaveChannel(t.Idx, waveData, adsr, note, sg.blockSamples)
	case CGBNoise:
		v = NewNoiseChannel(t.Idx, NoisePatt(inst.NoisePatt), adsr, note, sg.blockSamples)
	}
	if v != nil && inst.PanOverride {
		switch c := v.(type) {
		case *SquareChannel:
			c.SetInstPan(inst.ForcedPan)
		case *WaveChannel:
			c.SetInstPan(inst.ForcedPan)
		case *NoiseChannel:
			c.SetInstPan(inst.ForcedPan)
		}
	}
	return v
}

// reservePCMVoice enforces the polyphony budget. When the pool is
// full the lowest-priority, oldest, already-released voice goes
// first; a voice still in attack is never stolen.
func (sg *StreamGenerator) reservePCMVoice() bool {
	count := 0
	var victim *SoundChannel
	for _, v := range sg.voices {
		c, ok := v.(*SoundChannel)
		if !ok || c.State() == EnvDead {
			continue
		}
		count++
		if c.State() == EnvAttack || c.State() == EnvInit {
			continue
		}
		if victim == nil || stealOrder(c, victim) {
			victim = c
		}
	}
	if count < int(sg.cfg.PolyphonyLimit) {
		return true
	}
	if victim == nil {
		return false
	}
	victim.Kill()
	return true
}

// stealOrder reports whether a should be stolen before b.
func stealOrder(a, b *SoundChannel) bool {
	aRel := a.State() == EnvRelease
	bRel := b.State() == EnvRelease
	if aRel != bRel {
		return aRel
	}
	if a.Priority() != b.Priority() {
		return a.Priority() < b.Priority()
	}
	return a.SeqNo() < b.SeqNo()
}

// Reset clears all voices and rewinds the sequence.
func (sg *StreamGenerator) Reset() error {
	for _, v := range sg.voices {
		v.Kill()
	}
	sg.voices = sg.voices[:0]
	for _, r := range sg.reverbs {
		r.Reset()
	}
	sg.ended = false
	return sg.seq.Reset()
}
