package dsp

// Rate used in place of the instrument release when a voice has to
// clear out for its replacement. Kills a full-scale envelope in four
// frames.
const fastReleaseRate = 64

// An Envelope runs the shared ADSR state machine. Levels are 8-bit;
// attack is additive per frame, decay and release are multiplicative
// (rate/256). fromLevel trails level by one step so callers can
// interpolate between frames.
type Envelope struct {
	adsr      ADSR
	state     EnvState
	level     uint8
	peak      uint8
	fromLevel uint8
	interStep uint8
	fastRel   bool
}

func NewEnvelope(adsr ADSR) Envelope {
	return Envelope{adsr: adsr, state: EnvInit}
}

func (e *Envelope) State() EnvState {
	return e.state
}

func (e *Envelope) Level() uint8 {
	return e.level
}

func (e *Envelope) FromLevel() uint8 {
	return e.fromLevel
}

// Release forces the transition to REL. With fast set the release
// rate is overridden so a replacement voice can take over cleanly.
func (e *Envelope) Release(fast bool) {
	if e.state < EnvRelease {
		e.state = EnvRelease
		if fast {
			e.fastRel = true
		}
	} else if fast {
		e.fastRel = true
	}
}

// Kill silences the envelope immediately.
func (e *Envelope) Kill() {
	e.state = EnvDead
	e.level = 0
	e.fromLevel = 0
}

// Step advances the state machine by one engine frame.
func (e *Envelope) Step() {
	e.fromLevel = e.level

	switch e.state {
	case EnvInit:
		e.level = 0
		e.fromLevel = 0
		e.peak = 255
		e.state = EnvAttack
		if e.adsr.Att >= 255 {
			// Instantaneous attack
			e.level = 255
			e.state = EnvDecay
		}
	case EnvAttack:
		if int(e.level)+int(e.adsr.Att) >= 255 {
			e.level = 255
			e.state = EnvDecay
		} else {
			e.level += e.adsr.Att
		}
	case EnvDecay:
		e.level = uint8(uint32(e.level) * uint32(e.adsr.Dec) / 256)
		if e.level <= e.adsr.Sus {
			e.level = e.adsr.Sus
			e.state = EnvSustain
			if e.adsr.Sus == 0 {
				e.state = EnvDead
			}
		}
	case EnvSustain:
		e.level = e.adsr.Sus
		if e.adsr.Sus == 0 {
			e.state = EnvDead
		}
	case EnvRelease:
		rel := uint32(e.adsr.Rel)
		if e.fastRel {
			rel = fastReleaseRate
		}
		e.level = uint8(uint32(e.level) * rel / 256)
		if e.level == 0 {
			e.state = EnvDead
		}
	case EnvDead:
	}
}

// QuarterStep is the CGB cadence: called four times per frame, it
// only advances the state machine on every fourth call and keeps the
// quarter index for sub-frame interpolation.
func (e *Envelope) QuarterStep() {
	if e.interStep == 0 {
		e.Step()
	}
	e.interStep = (e.interStep + 1) % InterFrames
}

// InterStep returns the current quarter-frame index (0..3).
func (e *Envelope) InterStep() uint8 {
	return e.interStep
}
