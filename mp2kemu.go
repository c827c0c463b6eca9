package main

import (
	"flag"
	"fmt"
	"syscall"

	"github.com/handegar/mp2kemu/disasm"
	"github.com/handegar/mp2kemu/dsp"
	"github.com/handegar/mp2kemu/player"
	"github.com/handegar/mp2kemu/rom"
	"github.com/handegar/mp2kemu/settings"
	"github.com/handegar/mp2kemu/ui"
	"github.com/handegar/mp2kemu/utils"
	"github.com/handegar/mp2kemu/writer"
)

func parseCommandLineParameters() {
	flag.StringVar(&settings.RomFilename, "rom", settings.RomFilename, "GBA ROM file")
	flag.StringVar(&settings.OutputWav, "out", settings.OutputWav, "Output wav-file")
	flag.IntVar(&settings.SongNo, "n", settings.SongNo, "Song number")
	flag.IntVar(&settings.SongTableOffset, "table", settings.SongTableOffset,
		"Song table offset (-1: scan for it)")
	flag.BoolVar(&settings.SplitTracks, "split-tracks", settings.SplitTracks,
		"Write one wav-file per track")
	flag.BoolVar(&settings.Stream, "play", settings.Stream, "Stream to the speaker")
	flag.BoolVar(&settings.Monitor, "monitor", settings.Monitor,
		"Show the playback monitor (implies -play)")
	flag.BoolVar(&settings.PrintCode, "print-code", settings.PrintCode, "Print sequence code")
	flag.BoolVar(&settings.PrintStats, "print-stats", settings.PrintStats, "Print song table stats")
	flag.Float64Var(&settings.TrailSeconds, "trail", settings.TrailSeconds,
		"Trailing seconds after the song ends")
	flag.IntVar(&settings.EngineFreqOverride, "freq", settings.EngineFreqOverride,
		"Engine frequency index override (0..13)")
	flag.IntVar(&settings.ReverbOverride, "reverb", settings.ReverbOverride,
		"Reverb level override (0..127)")
	flag.IntVar(&settings.PolyphonyLimit, "poly", settings.PolyphonyLimit, "PCM polyphony limit")
	flag.Parse()
}

func buildConfig() dsp.GameConfig {
	cfg := dsp.DefaultConfig()
	if settings.EngineFreqOverride >= 0 {
		cfg.EngineFreq = uint8(settings.EngineFreqOverride)
	}
	if settings.ReverbOverride >= 0 {
		cfg.EngineRev = uint8(settings.ReverbOverride)
	}
	if settings.PolyphonyLimit > 0 {
		cfg.PolyphonyLimit = uint8(settings.PolyphonyLimit)
	}
	return cfg
}

func main() {
	fmt.Printf("* MP2K emulator v%s\n", settings.Version)
	parseCommandLineParameters()

	if settings.RomFilename == "" {
		fmt.Println("No ROM file specified. Use the '-rom' parameter.")
		syscall.Exit(-1)
	}

	image, err := rom.Load(settings.RomFilename)
	if err != nil {
		utils.Error("Reading ROM failed: %s", err)
		syscall.Exit(-1)
	}

	tableOffset := uint32(settings.SongTableOffset)
	if settings.SongTableOffset < 0 {
		off, found := rom.ScanSongTable(image)
		if !found {
			utils.Error("No song table found. Use the '-table' parameter.")
			syscall.Exit(-1)
		}
		fmt.Printf("* Song table found at 0x%X\n", off)
		tableOffset = off
	}

	table, err := rom.NewSongTable(image, tableOffset)
	if err != nil {
		utils.Error("Reading song table failed: %s", err)
		syscall.Exit(-1)
	}

	if settings.PrintStats {
		fmt.Printf("* %d songs in table at 0x%X\n", table.SongCount(), tableOffset)
	}

	songPos, err := table.SongPos(settings.SongNo)
	if err != nil {
		utils.Error("Song lookup failed: %s", err)
		syscall.Exit(-1)
	}

	if settings.PrintCode {
		if err := disasm.PrintListing(image, songPos); err != nil {
			utils.Error("Listing failed: %s", err)
			syscall.Exit(-1)
		}
	}

	cfg := buildConfig()
	seq, err := dsp.NewSequence(image, songPos, cfg.TrackLimit)
	if err != nil {
		utils.Error("Initializing sequence failed: %s", err)
		syscall.Exit(-1)
	}
	sg, err := dsp.NewStreamGenerator(seq, cfg)
	if err != nil {
		utils.Error("Initializing stream generator failed: %s", err)
		syscall.Exit(-1)
	}

	if settings.Monitor {
		settings.Stream = true
	}

	if settings.Stream {
		if err := play(sg, seq); err != nil {
			utils.Error("Playback failed: %s", err)
			syscall.Exit(-1)
		}
		reportTrackErrors(seq)
		return
	}

	if err := export(sg, seq); err != nil {
		utils.Error("Export failed: %s", err)
		syscall.Exit(-1)
	}
	reportTrackErrors(seq)
}

func play(sg *dsp.StreamGenerator, seq *dsp.Sequence) error {
	if !settings.Monitor {
		return player.Play(sg, settings.TrailSeconds, nil, nil)
	}

	if err := ui.Init(); err != nil {
		return err
	}
	defer ui.Close()

	uiEvents := make(chan string, 1)
	go func() {
		for ev := range ui.PollEvents() {
			if id := ui.HandleEvent(ev); id != "" && id != "redraw" {
				uiEvents <- id
			}
		}
	}()

	refresh := func(paused bool) {
		samplesPlayed := sg.BlocksRendered() * uint64(sg.GetBufferUnitCount())
		snap := ui.Snapshot{
			Title:  settings.RomFilename,
			SongNo: settings.SongNo,
			Tempo:  seq.Tempo(),
			Tick:   seq.TickCount(),
			Time:   utils.FormatTime(samplesPlayed, sg.GetSampleRate()),
			Ended:  sg.HasStreamEnded(),
		}
		for _, t := range seq.Tracks() {
			info := ui.TrackInfo{
				Idx:     t.Idx,
				Prog:    t.Prog(),
				Vol:     t.GetVol(),
				Pan:     t.GetPan(),
				Running: t.IsRunning(),
				Voices:  sg.VoicesOnTrack(t.Idx),
			}
			if t.Err() != nil {
				info.Error = t.Err().Error()
			}
			snap.Tracks = append(snap.Tracks, info)
		}
		ui.UpdateScreen(snap)
	}

	return player.Play(sg, settings.TrailSeconds, refresh, uiEvents)
}

func export(sg *dsp.StreamGenerator, seq *dsp.Sequence) error {
	return writer.Export(sg, len(seq.Tracks()), settings.OutputWav,
		settings.SplitTracks, settings.TrailSeconds)
}

func reportTrackErrors(seq *dsp.Sequence) {
	for _, t := range seq.Tracks() {
		if t.Err() != nil {
			utils.Warning("track %d stopped: %s", t.Idx, t.Err())
		}
	}
}
