package dsp

import (
	"testing"

	"github.com/handegar/mp2kemu/base"
)

// Engine frequency index 3 -> 13379 Hz -> 222 samples per block
func testConfig() GameConfig {
	cfg := DefaultConfig()
	cfg.EngineFreq = 3
	cfg.RevType = RevNone
	return cfg
}

func fullEnv() ADSR {
	return ADSR{Att: 255, Dec: 255, Sus: 255, Rel: 160}
}

func TestSilentTrack(t *testing.T) {
	b := newRomBuilder()
	bank := b.addInstrument(base.InstSquare1, 0, 0, 2, fullEnv())
	song := b.addSong(bank, []byte{base.CmdFine})

	_, sg, err := makeGenerator(b, song, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	buffers := sg.ProcessAndGetAudio()
	if e := blockEnergy(buffers); e != 0.0 {
		t.Fatalf("silent track produced energy %g", e)
	}
	if !sg.HasStreamEnded() {
		t.Fatalf("stream did not end on FINE")
	}
}

func TestBlockSizes(t *testing.T) {
	b := newRomBuilder()
	bank := b.addInstrument(base.InstSquare1, 0, 0, 2, fullEnv())
	song := b.addSong(bank,
		[]byte{base.CmdFine},
		[]byte{base.CmdVoice, 0, 0xFF, 60, 127, 0xB0, base.CmdFine})

	_, sg, err := makeGenerator(b, song, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	buffers := sg.ProcessAndGetAudio()
	if len(buffers) != 2 {
		t.Fatalf("got %d track buffers, want 2", len(buffers))
	}
	for ti, buf := range buffers {
		if uint32(len(buf)) != 2*sg.GetBufferUnitCount() {
			t.Fatalf("track %d: block length %d, want %d",
				ti, len(buf), 2*sg.GetBufferUnitCount())
		}
	}

	// Track 0 is already done: its buffer must be bitwise zero
	for i, s := range buffers[0] {
		if s != 0.0 {
			t.Fatalf("voiceless track emitted %f at %d", s, i)
		}
	}
}

func TestSingleSquareNote(t *testing.T) {
	b := newRomBuilder()
	bank := b.addInstrument(base.InstSquare1, 0, 0, uint32(DutyD50), fullEnv())
	// TEMPO 75 (150 BPM), VOICE 0, VOL 127, N96 c4 v127, W96, FINE
	song := b.addSong(bank, []byte{
		base.CmdTempo, 75,
		base.CmdVoice, 0,
		base.CmdVol, 127,
		0xFF, 60, 127,
		0xB0,
		base.CmdFine,
	})

	_, sg, err := makeGenerator(b, song, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	sounding := 0
	blocks := 0
	for !sg.HasStreamEnded() {
		buffers := sg.ProcessAndGetAudio()
		if blockEnergy(buffers) > 0.0 {
			sounding++
		}
		blocks++
		if blocks > 400 {
			t.Fatalf("song never ended")
		}
	}

	// ~96 ticks of tone plus the release tail
	if sounding < 90 {
		t.Fatalf("only %d sounding blocks, want ~96+", sounding)
	}
	if blocks < 96 || blocks > 200 {
		t.Fatalf("song lasted %d blocks", blocks)
	}

	// After the end everything is silent again
	buffers := sg.ProcessAndGetAudio()
	if e := blockEnergy(buffers); e != 0.0 {
		t.Fatalf("energy %g after stream end", e)
	}
}

func TestPCMLoopTie(t *testing.T) {
	b := newRomBuilder()

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(int8(100)) // constant DC keeps the check simple
	}
	sample := b.addSample(13379.0, true, 0, payload)
	bank := b.addInstrument(base.InstPCM, 0, 0, sample, fullEnv())

	// TIE c4, 3x W96, EOT, FINE
	song := b.addSong(bank, []byte{
		base.CmdTempo, 75,
		base.CmdVoice, 0,
		base.CmdVol, 127,
		base.CmdTie, 60, 127,
		0xB0, 0xB0, 0xB0,
		base.CmdEoT,
		base.CmdFine,
	})

	_, sg, err := makeGenerator(b, song, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	// 1000 samples at unity rate run out after ~5 blocks; looping
	// keeps the tie sounding across all 288 ticks.
	for block := 0; block < 280; block++ {
		buffers := sg.ProcessAndGetAudio()
		if block > 2 && block < 270 {
			if blockEnergy(buffers) == 0.0 {
				t.Fatalf("tie went silent in block %d (loop wrap broken?)", block)
			}
		}
		if sg.HasStreamEnded() {
			t.Fatalf("stream ended during the tie, block %d", block)
		}
	}

	for block := 0; block < 100 && !sg.HasStreamEnded(); block++ {
		sg.ProcessAndGetAudio()
	}
	if !sg.HasStreamEnded() {
		t.Fatalf("stream never ended after EOT")
	}
}

func TestSquarePreemption(t *testing.T) {
	b := newRomBuilder()
	bank := b.addInstrument(base.InstSquare1, 0, 0, uint32(DutyD50), fullEnv())
	// Second square note 4 ticks into the first one
	song := b.addSong(bank, []byte{
		base.CmdTempo, 75,
		base.CmdVoice, 0,
		0xFF, 60, 127,
		0x84, // W04
		0xFF, 67, 127,
		0xB0,
		base.CmdFine,
	})

	_, sg, err := makeGenerator(b, song, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	sg.ProcessAndGetAudio()
	if sg.ActiveVoices() != 1 {
		t.Fatalf("%d voices after first note, want 1", sg.ActiveVoices())
	}

	// Blocks 2..5 cover the W04; the second note preempts at tick 4
	for i := 0; i < 4; i++ {
		sg.ProcessAndGetAudio()
	}
	if sg.ActiveVoices() != 2 {
		t.Fatalf("%d voices right after preemption, want old + new", sg.ActiveVoices())
	}

	// The fast release retires the old voice within a few frames
	for i := 0; i < 6; i++ {
		sg.ProcessAndGetAudio()
	}
	if sg.ActiveVoices() != 1 {
		t.Fatalf("%d voices after fast release, want 1", sg.ActiveVoices())
	}
}

func TestTempoChange(t *testing.T) {
	blocksUntilEnd := func(code []byte) int {
		b := newRomBuilder()
		bank := b.addInstrument(base.InstSquare1, 0, 0, 2, fullEnv())
		song := b.addSong(bank, code)
		_, sg, err := makeGenerator(b, song, testConfig())
		if err != nil {
			t.Fatal(err)
		}
		blocks := 0
		for !sg.HasStreamEnded() {
			sg.ProcessAndGetAudio()
			blocks++
			if blocks > 1000 {
				t.Fatalf("song never ended")
			}
		}
		return blocks
	}

	// W48 at the default tempo of 75: one tick every two blocks
	slow := blocksUntilEnd([]byte{0xA0, base.CmdFine})
	// TEMPO 75 decodes to 150 BPM and halves the samples per tick
	fast := blocksUntilEnd([]byte{base.CmdTempo, 75, 0xA0, base.CmdFine})

	if slow < 95 || slow > 99 {
		t.Fatalf("W48 at default tempo took %d blocks", slow)
	}
	if fast < slow/2-2 || fast > slow/2+2 {
		t.Fatalf("TEMPO 75 should halve samples-per-tick: %d blocks vs %d", fast, slow)
	}
}

func TestPolyphonyCap(t *testing.T) {
	b := newRomBuilder()

	payload := make([]byte, 4000)
	for i := range payload {
		payload[i] = byte(int8(i & 0x3F))
	}
	sample := b.addSample(13379.0, true, 0, payload)
	bank := b.addInstrument(base.InstPCM, 0, 0, sample, fullEnv())

	song := b.addSong(bank, []byte{
		base.CmdVoice, 0,
		0xFF, 60, 127,
		0xFF, 62, 127,
		0xFF, 64, 127,
		0xFF, 65, 127,
		0xFF, 67, 127,
		0xB0,
		base.CmdFine,
	})

	cfg := testConfig()
	cfg.PolyphonyLimit = 4
	_, sg, err := makeGenerator(b, song, cfg)
	if err != nil {
		t.Fatal(err)
	}

	sg.ProcessAndGetAudio()
	if sg.ActiveVoices() != 4 {
		t.Fatalf("%d active voices, want the polyphony cap of 4", sg.ActiveVoices())
	}
}

func TestDeterminism(t *testing.T) {
	build := func() *StreamGenerator {
		b := newRomBuilder()
		bank := b.addInstrument(base.InstSquare1, 0, 0, uint32(DutyD25), fullEnv())
		song := b.addSong(bank, []byte{
			base.CmdVoice, 0,
			base.CmdVol, 90,
			base.CmdPan, 32,
			base.CmdMod, 12,
			0xFF, 64, 110,
			0xA0,
			base.CmdFine,
		})
		_, sg, err := makeGenerator(b, song, testConfig())
		if err != nil {
			t.Fatal(err)
		}
		return sg
	}

	a := build()
	c := build()
	for block := 0; block < 80; block++ {
		ba := a.ProcessAndGetAudio()
		bc := c.ProcessAndGetAudio()
		for ti := range ba {
			for i := range ba[ti] {
				if ba[ti][i] != bc[ti][i] {
					t.Fatalf("block %d track %d sample %d differs", block, ti, i)
				}
			}
		}
	}
}

func TestRunningStatus(t *testing.T) {
	b := newRomBuilder()
	bank := b.addInstrument(base.InstSquare1, 0, 0, 2, fullEnv())
	// VOL 100 then a bare operand byte repeats the command
	song := b.addSong(bank, []byte{
		base.CmdVol, 100,
		50,
		0x81, // W01, forces one tick between checks
		base.CmdFine,
	})

	seq, sg, err := makeGenerator(b, song, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	sg.ProcessAndGetAudio()

	if got := seq.Tracks()[0].GetVol(); got != 50 {
		t.Fatalf("running status VOL = %d, want 50", got)
	}
	if seq.Tracks()[0].Err() != nil {
		t.Fatalf("track error: %s", seq.Tracks()[0].Err())
	}
}

func TestPatternCalls(t *testing.T) {
	b := newRomBuilder()
	bank := b.addInstrument(base.InstSquare1, 0, 0, 2, fullEnv())

	// Pattern: W24, PEND
	patt := b.add(0x98, base.CmdPend)

	song := b.addSong(bank, []byte{
		base.CmdTempo, 75,
		base.CmdPatt, 0, 0, 0, 0, // pointer patched below
		base.CmdPatt, 0, 0, 0, 0,
		base.CmdFine,
	})

	_, sg, err := makeGenerator(b, song, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	// Patch both PATT pointers to the pattern
	r := sg.Sequence().Rom()
	trackPos := sg.Sequence().Tracks()[0].Pos()
	data, _ := r.Slice(trackPos, 13)
	copy(data[3:7], u32le(busPtr(patt)))
	copy(data[8:12], u32le(busPtr(patt)))

	blocks := 0
	for !sg.HasStreamEnded() {
		sg.ProcessAndGetAudio()
		blocks++
		if blocks > 200 {
			t.Fatalf("pattern call never returned")
		}
	}
	// Two pattern calls of W24 each
	if blocks < 46 || blocks > 52 {
		t.Fatalf("pattern calls took %d blocks, want ~48", blocks)
	}
}

func TestBadPattPointerStopsTrack(t *testing.T) {
	b := newRomBuilder()
	bank := b.addInstrument(base.InstSquare1, 0, 0, 2, fullEnv())

	// A lone PATT byte: the pointer argument reads into the song
	// header and lands on a non-pointer, failing the track.
	song := b.addSong(bank, []byte{base.CmdPatt})
	seq, sg, err := makeGenerator(b, song, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	blocks := 0
	for !sg.HasStreamEnded() {
		sg.ProcessAndGetAudio()
		blocks++
		if blocks > 100 {
			t.Fatalf("broken track kept the stream alive")
		}
	}
	if seq.Tracks()[0].Err() == nil {
		t.Fatalf("expected a track error")
	}
}

func TestInvalidConfig(t *testing.T) {
	b := newRomBuilder()
	bank := b.addInstrument(base.InstSquare1, 0, 0, 2, fullEnv())
	song := b.addSong(bank, []byte{base.CmdFine})

	cfg := testConfig()
	cfg.EngineFreq = 14
	if _, _, err := makeGenerator(b, song, cfg); err == nil {
		t.Fatalf("engine freq 14 must be rejected")
	}

	cfg = testConfig()
	cfg.PolyphonyLimit = 0
	if _, _, err := makeGenerator(b, song, cfg); err == nil {
		t.Fatalf("zero polyphony must be rejected")
	}
}

func TestMutedTrackIsSilent(t *testing.T) {
	b := newRomBuilder()
	bank := b.addInstrument(base.InstSquare1, 0, 0, uint32(DutyD50), fullEnv())
	song := b.addSong(bank, []byte{
		base.CmdVoice, 0,
		0xFF, 60, 127,
		0xB0,
		base.CmdFine,
	})

	seq, sg, err := makeGenerator(b, song, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	seq.Tracks()[0].Muted = true

	for i := 0; i < 10; i++ {
		buffers := sg.ProcessAndGetAudio()
		if e := blockEnergy(buffers); e != 0.0 {
			t.Fatalf("muted track emitted energy %g", e)
		}
	}
}
