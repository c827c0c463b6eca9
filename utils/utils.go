package utils

import (
	"fmt"

	"github.com/fatih/color"
)

func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

var noteNames = [12]string{
	"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B",
}

// NoteName formats a MIDI key the way trackers print them, e.g.
// key 60 -> "C4".
func NoteName(key uint8) string {
	return fmt.Sprintf("%s%d", noteNames[key%12], int(key)/12-1)
}

func Warning(format string, args ...interface{}) {
	color.Yellow("WARNING: "+format, args...)
}

func Error(format string, args ...interface{}) {
	color.Red("ERROR: "+format, args...)
}

// FormatTime renders a sample count as mm:ss at the given rate.
func FormatTime(samples uint64, sampleRate uint32) string {
	secs := samples / uint64(sampleRate)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
