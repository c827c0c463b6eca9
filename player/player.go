package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/pkg/errors"

	"github.com/handegar/mp2kemu/dsp"
)

// songStreamer adapts the block-pull interface of the generator to
// beep's sample-pull interface. The speaker goroutine drives it, so
// all generator access happens under the mutex.
type songStreamer struct {
	mtx         sync.Mutex
	sg          *dsp.StreamGenerator
	block       [][]float32
	pos         int
	paused      bool
	done        bool
	trail       int
	trailBlocks int
}

func (s *songStreamer) Stream(samples [][2]float64) (int, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.done {
		return 0, false
	}
	if s.paused {
		for i := range samples {
			samples[i][0] = 0.0
			samples[i][1] = 0.0
		}
		return len(samples), true
	}

	blockSamples := int(s.sg.GetBufferUnitCount())
	for i := range samples {
		if s.block == nil || s.pos >= blockSamples {
			if s.sg.HasStreamEnded() {
				s.trail++
				if s.trail >= s.trailBlocks {
					s.done = true
					return i, i > 0
				}
			}
			s.block = s.sg.ProcessAndGetAudio()
			s.pos = 0
		}
		var l, r float64
		for _, tbuf := range s.block {
			l += float64(tbuf[2*s.pos])
			r += float64(tbuf[2*s.pos+1])
		}
		samples[i][0] = l
		samples[i][1] = r
		s.pos++
	}
	return len(samples), true
}

func (s *songStreamer) Err() error {
	return nil
}

func (s *songStreamer) finished() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.done
}

func (s *songStreamer) togglePause() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.paused = !s.paused
	return s.paused
}

// Play streams the song to the default audio device. Space pauses,
// 'q' or ESC stops. When uiEvents is non-nil the transport is driven
// by those event ids ("quit"/"pause") instead of raw keyboard input,
// and refresh is called ~10 times a second for the monitor; refresh
// runs with the speaker locked so it may read the generator.
func Play(sg *dsp.StreamGenerator, trailSeconds float64,
	refresh func(paused bool), uiEvents <-chan string) error {

	rate := beep.SampleRate(sg.GetSampleRate())
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return errors.Wrap(err, "initializing speaker")
	}
	defer speaker.Close()

	stream := &songStreamer{
		sg:          sg,
		trailBlocks: int(trailSeconds * dsp.FrameRate),
	}

	doneCh := make(chan struct{})
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		close(doneCh)
	})))

	keyCh := make(chan string, 1)
	if uiEvents == nil {
		if err := keyboard.Open(); err == nil {
			defer keyboard.Close()
			fmt.Println("* Playing. [space] pause, [q/ESC] quit")
			go func() {
				for {
					char, key, err := keyboard.GetKey()
					if err != nil {
						return
					}
					switch {
					case key == keyboard.KeyEsc || char == 'q':
						keyCh <- "quit"
					case key == keyboard.KeySpace:
						keyCh <- "pause"
					}
				}
			}()
		}
		uiEvents = keyCh
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-doneCh:
			return nil
		case ev := <-uiEvents:
			switch ev {
			case "quit":
				speaker.Clear()
				return nil
			case "pause":
				paused = stream.togglePause()
				if refresh == nil {
					if paused {
						fmt.Println("* Paused")
					} else {
						fmt.Println("* Resumed")
					}
				}
			}
		case <-ticker.C:
			if stream.finished() {
				return nil
			}
			if refresh != nil {
				speaker.Lock()
				refresh(paused)
				speaker.Unlock()
			}
		}
	}
}
