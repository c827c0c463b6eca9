package writer

import (
	"fmt"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/pkg/errors"

	"github.com/handegar/mp2kemu/dsp"
	"github.com/handegar/mp2kemu/utils"
)

type WriteStreamer struct {
	Data           [][2]float64
	SamplesWritten int
}

func (ws *WriteStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := 0; i < len(samples); i++ {
		if ws.SamplesWritten+i >= len(ws.Data) {
			return i, false
		}
		samples[i][0] = ws.Data[ws.SamplesWritten+i][0]
		samples[i][1] = ws.Data[ws.SamplesWritten+i][1]
	}

	ws.SamplesWritten += len(samples)
	return len(samples), ws.SamplesWritten < len(ws.Data)
}

func (ws *WriteStreamer) Err() error {
	return nil
}

func SaveAsWAV(filename string, sampleRate uint32, samples [][2]float64) error {
	fmt.Printf("* Writing to '%s' (%d samples)\n", filename, len(samples))
	outWAVFile, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}
	defer outWAVFile.Close()

	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 2,
		Precision:   2,
	}

	var outStream = &WriteStreamer{Data: samples}
	if err := wav.Encode(outWAVFile, outStream, format); err != nil {
		return errors.Wrap(err, "writing samples")
	}
	return nil
}

// RenderSong pulls blocks out of the generator until the stream ends
// (plus trailSeconds of silence) and returns the master mixdown and
// the per-track buffers. Values can exceed [-1, +1]; the WAV encoder
// clamps.
func RenderSong(sg *dsp.StreamGenerator, nTracks int, trailSeconds float64) (master [][2]float64, tracks [][][2]float64) {
	blockSamples := int(sg.GetBufferUnitCount())
	tracks = make([][][2]float64, nTracks)

	trailBlocks := int(trailSeconds * dsp.FrameRate)
	trail := 0
	for {
		if sg.HasStreamEnded() {
			if trail >= trailBlocks {
				break
			}
			trail++
		}
		buffers := sg.ProcessAndGetAudio()
		utils.Assert(len(buffers) == nTracks, "generator track count mismatch: %d != %d",
			len(buffers), nTracks)

		for ti, buf := range buffers {
			utils.Assert(len(buf) == 2*blockSamples, "bad block size on track %d", ti)
			for i := 0; i < blockSamples; i++ {
				tracks[ti] = append(tracks[ti], [2]float64{
					float64(buf[2*i]),
					float64(buf[2*i+1]),
				})
			}
		}
	}

	if len(tracks) > 0 {
		master = make([][2]float64, len(tracks[0]))
		for _, tbuf := range tracks {
			for i := range tbuf {
				master[i][0] += tbuf[i][0]
				master[i][1] += tbuf[i][1]
			}
		}
	}
	return master, tracks
}

// Export renders the song and writes either one master WAV or one
// file per track.
func Export(sg *dsp.StreamGenerator, nTracks int, filename string, split bool, trailSeconds float64) error {
	master, tracks := RenderSong(sg, nTracks, trailSeconds)

	if !split {
		return SaveAsWAV(filename, sg.GetSampleRate(), master)
	}
	for ti, tbuf := range tracks {
		name := fmt.Sprintf("%s.%02d.wav", filename, ti)
		if err := SaveAsWAV(name, sg.GetSampleRate(), tbuf); err != nil {
			return err
		}
	}
	return nil
}
