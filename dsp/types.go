package dsp

// Frames per second of the engine. One output block covers exactly
// one frame.
const FrameRate = 60

// CGB envelopes advance their interpolation 4 times per frame.
const InterFrames = 4

// Tick cadence: at 150 BPM one sequencer tick passes per frame.
const bpmPerFrame = 150

// The LFSR noise generator runs at this rate before resampling.
const NoiseSamplingFreq = 65536.0

// SampleRateLut is the MP2K mixing-rate table indexed by the
// EngineFreq config value. Zero entries are invalid configurations.
var SampleRateLut = [16]uint32{
	5734, 7884, 10512, 13379, 15768, 18157, 21024, 26758,
	31536, 36314, 40137, 42048, 44100, 48000, 0, 0,
}

// VolLut is the hardware mapping of 4-bit channel volume to the
// 3-bit output scale of the CGB channels.
var VolLut = [16]uint8{0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7}

// The four square duty cycles.
type WaveDuty uint8

const (
	DutyD12 WaveDuty = iota // 12.5%
	DutyD25
	DutyD50
	DutyD75
)

// The two LFSR noise flavors.
type NoisePatt uint8

const (
	NoiseFine  NoisePatt = iota // 15-bit LFSR
	NoiseRough                  // 7-bit LFSR
)

// The CGB voice kinds. Only one voice of each kind may sound per
// track at a time.
type CGBType uint8

const (
	CGBSquare1 CGBType = iota
	CGBSquare2
	CGBWave
	CGBNoise
)

// Envelope phases, in legal transition order.
type EnvState uint8

const (
	EnvInit EnvState = iota
	EnvAttack
	EnvDecay
	EnvSustain
	EnvRelease
	EnvDead
)

func (s EnvState) String() string {
	switch s {
	case EnvInit:
		return "INIT"
	case EnvAttack:
		return "ATK"
	case EnvDecay:
		return "DEC"
	case EnvSustain:
		return "SUS"
	case EnvRelease:
		return "REL"
	case EnvDead:
		return "DEAD"
	}
	return "?"
}

type ReverbType int

const (
	RevNormal ReverbType = iota
	RevGS1
	RevGS2
	RevMGAT
	RevNone
)

// ADSR rates as stored in the instrument bank.
type ADSR struct {
	Att uint8
	Dec uint8
	Sus uint8
	Rel uint8
}

// A Note as struck by the sequencer. Length < 0 marks a tie which is
// only released by an explicit EOT event.
type Note struct {
	MidiKey  uint8
	Velocity uint8
	Length   int8
}

// Resampler selection for PCM voices.
type ResamplerType int

const (
	ResNearest ResamplerType = iota
	ResLinear
	ResSinc
)

// GameConfig carries everything the core needs to know about the
// game's engine setup. It is passed by value into the constructors;
// the core holds no global configuration.
type GameConfig struct {
	PCMVol         uint8 // 0..15
	EngineRev      uint8 // 0..127, reverb intensity
	EngineFreq     uint8 // index into SampleRateLut
	RevType        ReverbType
	TrackLimit     uint8
	PolyphonyLimit uint8 // max simultaneous PCM voices
	PCMResampler   ResamplerType
}

func DefaultConfig() GameConfig {
	return GameConfig{
		PCMVol:         15,
		EngineRev:      0,
		EngineFreq:     4, // 15768 Hz, the most common engine setup
		RevType:        RevNormal,
		TrackLimit:     16,
		PolyphonyLimit: 32,
		PCMResampler:   ResLinear,
	}
}

// MixingArgs is handed to every voice per block.
type MixingArgs struct {
	Vol              float32 // master PCM volume
	SampleRateInv    float32
	SamplesPerBufInv float32
}
