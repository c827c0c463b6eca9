package dsp

// A Reverb processes one track's interleaved stereo block in place.
// All variants run a delay line of one frame (blockSamples) of
// latency.
type Reverb interface {
	Process(buf []float32, numSamples uint32)
	Reset()
}

// Feedback ceiling. The tail contracts by at least the feedback gain
// per frame, so with intensity <= 1 a full-scale tail is below 1e-6
// within 64 frames (0.8^64 < 1e-6) even at reverb level 127.
const maxFeedback = 0.8

func NewReverb(typ ReverbType, intensity float32, blockSamples uint32) Reverb {
	if intensity <= 0.0 {
		typ = RevNone
	}
	gain := intensity * maxFeedback
	switch typ {
	case RevGS1, RevGS2:
		return newGSReverb(gain, blockSamples)
	case RevMGAT:
		return newMGATReverb(gain, blockSamples)
	case RevNone:
		return nopReverb{}
	default:
		return newPlainReverb(gain, blockSamples)
	}
}

type nopReverb struct{}

func (nopReverb) Process(buf []float32, numSamples uint32) {}
func (nopReverb) Reset()                                   {}

//
// Plain: single-tap comb with feedback
//

type plainReverb struct {
	line []float32 // interleaved stereo
	pos  int
	gain float32
}

func newPlainReverb(gain float32, blockSamples uint32) *plainReverb {
	return &plainReverb{
		line: make([]float32, 2*blockSamples),
		gain: gain,
	}
}

func (r *plainReverb) Reset() {
	for i := range r.line {
		r.line[i] = 0.0
	}
	r.pos = 0
}

func (r *plainReverb) Process(buf []float32, numSamples uint32) {
	for i := uint32(0); i < numSamples; i++ {
		l := buf[2*i] + r.gain*r.line[r.pos]
		rr := buf[2*i+1] + r.gain*r.line[r.pos+1]
		r.line[r.pos] = l
		r.line[r.pos+1] = rr
		buf[2*i] = l
		buf[2*i+1] = rr
		r.pos += 2
		if r.pos >= len(r.line) {
			r.pos = 0
		}
	}
}

//
// GS (GameBoy Player): dual tap with cross feedback
//

type gsReverb struct {
	line []float32
	pos  int
	gain float32
}

func newGSReverb(gain float32, blockSamples uint32) *gsReverb {
	return &gsReverb{
		line: make([]float32, 2*blockSamples),
		gain: gain,
	}
}

func (r *gsReverb) Reset() {
	for i := range r.line {
		r.line[i] = 0.0
	}
	r.pos = 0
}

func (r *gsReverb) Process(buf []float32, numSamples uint32) {
	half := len(r.line) / 2
	if half%2 != 0 {
		half--
	}
	for i := uint32(0); i < numSamples; i++ {
		pos2 := r.pos + half
		if pos2 >= len(r.line) {
			pos2 -= len(r.line)
		}
		// The second tap feeds back with the channels crossed
		l := buf[2*i] + r.gain*(0.5*r.line[r.pos]+0.5*r.line[pos2+1])
		rr := buf[2*i+1] + r.gain*(0.5*r.line[r.pos+1]+0.5*r.line[pos2])
		r.line[r.pos] = l
		r.line[r.pos+1] = rr
		buf[2*i] = l
		buf[2*i+1] = rr
		r.pos += 2
		if r.pos >= len(r.line) {
			r.pos = 0
		}
	}
}

//
// MGAT: three taps with stereo spread
//

type mgatReverb struct {
	line []float32
	pos  int
	gain float32
}

func newMGATReverb(gain float32, blockSamples uint32) *mgatReverb {
	return &mgatReverb{
		line: make([]float32, 2*blockSamples),
		gain: gain,
	}
}

func (r *mgatReverb) Reset() {
	for i := range r.line {
		r.line[i] = 0.0
	}
	r.pos = 0
}

func (r *mgatReverb) tap(offset int) (float32, float32) {
	p := r.pos + 2*offset
	for p >= len(r.line) {
		p -= len(r.line)
	}
	return r.line[p], r.line[p+1]
}

func (r *mgatReverb) Process(buf []float32, numSamples uint32) {
	n := len(r.line) / 2
	for i := uint32(0); i < numSamples; i++ {
		l0, r0 := r.tap(0)
		l1, r1 := r.tap(n / 4)
		l2, r2 := r.tap(n / 2)
		// Tap gains sum to 1; the middle tap is swapped for the
		// stereo spread.
		l := buf[2*i] + r.gain*(0.6*l0+0.3*r1+0.1*l2)
		rr := buf[2*i+1] + r.gain*(0.6*r0+0.3*l1+0.1*r2)
		r.line[r.pos] = l
		r.line[r.pos+1] = rr
		buf[2*i] = l
		buf[2*i+1] = rr
		r.pos += 2
		if r.pos >= len(r.line) {
			r.pos = 0
		}
	}
}
