package dsp

import (
	"math"
	"testing"
)

func TestLFSRPeriods(t *testing.T) {
	t.Run("Fine", func(t *testing.T) {
		r := uint16(0x7FFF)
		period := 0
		for {
			r = stepLFSR(r, NoiseFine)
			period++
			if r == 0x7FFF {
				break
			}
			if period > 40000 {
				t.Fatalf("fine LFSR never cycled")
			}
		}
		if period != 32767 {
			t.Fatalf("fine LFSR period = %d, want 32767", period)
		}
	})

	t.Run("Rough", func(t *testing.T) {
		r := uint16(0x7F)
		period := 0
		for {
			r = stepLFSR(r, NoiseRough)
			period++
			if r == 0x7F {
				break
			}
			if period > 200 {
				t.Fatalf("rough LFSR never cycled")
			}
		}
		if period != 127 {
			t.Fatalf("rough LFSR period = %d, want 127", period)
		}
	})

	t.Run("NeverZero", func(t *testing.T) {
		r := uint16(0x7F)
		for i := 0; i < 127; i++ {
			r = stepLFSR(r, NoiseRough)
			if r == 0 {
				t.Fatalf("LFSR locked up at step %d", i)
			}
		}
	})
}

func TestDutyPatterns(t *testing.T) {
	// The DC offset of a full pattern period is (duty - 0.5) * peak
	duties := []float64{0.125, 0.25, 0.5, 0.75}
	const peak = 1.0 // high minus low of the +-0.5 pattern

	for d, duty := range duties {
		var sum float64
		high := 0
		for _, s := range dutyPatterns[d] {
			sum += float64(s)
			if s > 0 {
				high++
			}
		}
		avg := sum / 8.0
		want := (duty - 0.5) * peak
		if math.Abs(avg-want) > 1.0/256.0 {
			t.Errorf("duty %d: avg = %f, want %f", d, avg, want)
		}
		if float64(high)/8.0 != duty {
			t.Errorf("duty %d: %d/8 samples high, want %.3f", d, high, duty)
		}
	}
}

func TestVolLut(t *testing.T) {
	want := [16]uint8{0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7}
	if VolLut != want {
		t.Fatalf("VolLut = %v", VolLut)
	}
}

func TestWaveUnpack(t *testing.T) {
	// Nibbles unpack big end first, scaled to [-1, +1]
	waveData := make([]byte, 16)
	waveData[0] = 0xF0 // 15, 0
	waveData[1] = 0x88 // 8, 8

	c := NewWaveChannel(0, waveData, ADSR{Att: 255, Sus: 255}, Note{MidiKey: 60, Velocity: 127}, 256)
	if c.waveBuffer[0] != 1.0 {
		t.Errorf("nibble 15 -> %f, want 1.0", c.waveBuffer[0])
	}
	if c.waveBuffer[1] != -1.0 {
		t.Errorf("nibble 0 -> %f, want -1.0", c.waveBuffer[1])
	}
	if math.Abs(float64(c.waveBuffer[2]-(8.0-7.5)/7.5)) > 1e-6 {
		t.Errorf("nibble 8 -> %f", c.waveBuffer[2])
	}
}

func TestSquarePitch(t *testing.T) {
	c := NewSquareChannel(0, CGBSquare1, DutyD50, ADSR{Att: 255, Sus: 255},
		Note{MidiKey: 69, Velocity: 127}, 256)
	c.SetPitch(0)
	// Key 69 runs the 8-step pattern at 3520 Hz -> 440 Hz tone
	if math.Abs(float64(c.freq)-3520.0) > 0.01 {
		t.Fatalf("freq = %f, want 3520", c.freq)
	}

	c.SetPitch(768) // +12 semitones in 64ths
	if math.Abs(float64(c.freq)-7040.0) > 0.01 {
		t.Fatalf("freq = %f, want 7040", c.freq)
	}
}

func TestNoisePitchClamp(t *testing.T) {
	c := NewNoiseChannel(0, NoiseFine, ADSR{Att: 255, Sus: 255},
		Note{MidiKey: 127, Velocity: 127}, 256)
	c.SetPitch(0)
	if c.freq > 524288.0 {
		t.Fatalf("noise freq %f above hardware cap", c.freq)
	}

	c.note.MidiKey = 0
	c.SetPitch(0)
	if c.freq < 8.0 {
		t.Fatalf("noise freq %f below hardware floor", c.freq)
	}
}

func TestCGBPreemptionRelease(t *testing.T) {
	// A preempted square goes through fast release and dies within a
	// handful of frames.
	c := NewSquareChannel(0, CGBSquare1, DutyD50, ADSR{Att: 255, Dec: 255, Sus: 255, Rel: 255},
		Note{MidiKey: 60, Velocity: 127, Length: -1}, 222)
	args := MixingArgs{Vol: 1.0, SampleRateInv: 1.0 / 13379.0, SamplesPerBufInv: 1.0 / 222.0}
	out := make([]float32, 2*222)

	c.Process(out, &args)
	if c.State() == EnvDead {
		t.Fatalf("fresh voice died immediately")
	}

	c.Release(true)
	frames := 0
	for c.State() != EnvDead {
		for i := range out {
			out[i] = 0.0
		}
		c.Process(out, &args)
		frames++
		if frames > 8 {
			t.Fatalf("fast release did not retire the voice")
		}
	}
}
