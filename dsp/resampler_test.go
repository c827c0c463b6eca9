package dsp

import (
	"math"
	"testing"
)

// sourceFetcher feeds a fixed signal to a resampler and reports
// end-of-stream when exhausted.
type sourceFetcher struct {
	src []float32
	pos int
}

func (s *sourceFetcher) fetch(fetchBuffer *[]float32, samplesRequired int) bool {
	for i := 0; i < samplesRequired; i++ {
		if s.pos >= len(s.src) {
			return false
		}
		*fetchBuffer = append(*fetchBuffer, s.src[s.pos])
		s.pos++
	}
	return true
}

func sineSignal(n int) []float32 {
	src := make([]float32, n)
	for i := range src {
		src[i] = float32(math.Sin(float64(i) * 0.1))
	}
	return src
}

func TestResamplerIdentity(t *testing.T) {
	// At phaseInc == 1.0 every resampler must reproduce the source
	cases := []struct {
		name    string
		rs      Resampler
		epsilon float64
	}{
		{"Nearest", &NearestResampler{}, 0.0},
		{"Linear", &LinearResampler{}, 0.0},
		{"Sinc", NewSincResampler(), 1e-3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := sineSignal(256)
			f := &sourceFetcher{src: src}
			out := make([]float32, 64)

			for block := 0; block < 3; block++ {
				if !tc.rs.Process(out, 1.0, f.fetch) {
					t.Fatalf("source ended early in block %d", block)
				}
				for i := range out {
					want := float64(src[block*64+i])
					got := float64(out[i])
					if math.Abs(got-want) > tc.epsilon {
						t.Fatalf("block %d sample %d: got %f, want %f",
							block, i, got, want)
					}
				}
			}
		})
	}
}

func TestResamplerEndOfStream(t *testing.T) {
	for _, tc := range []struct {
		name string
		rs   Resampler
	}{
		{"Nearest", &NearestResampler{}},
		{"Linear", &LinearResampler{}},
		{"Sinc", NewSincResampler()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := &sourceFetcher{src: sineSignal(10)}
			out := make([]float32, 64)
			if tc.rs.Process(out, 1.0, f.fetch) {
				t.Fatalf("expected end-of-stream")
			}
			// The tail past the source must be zero-padded
			for i := 32; i < 64; i++ {
				if out[i] != 0.0 {
					t.Fatalf("sample %d not padded: %f", i, out[i])
				}
			}
		})
	}
}

func TestResamplerDownsampling(t *testing.T) {
	// A half-rate pull consumes twice the source per block
	f := &sourceFetcher{src: sineSignal(512)}
	rs := &LinearResampler{}
	out := make([]float32, 64)
	if !rs.Process(out, 2.0, f.fetch) {
		t.Fatalf("unexpected end of stream")
	}
	for i := 0; i < 32; i++ {
		want := float64(f.src[2*i])
		if math.Abs(float64(out[i])-want) > 1e-6 {
			t.Fatalf("sample %d: got %f, want %f", i, out[i], want)
		}
	}
}
