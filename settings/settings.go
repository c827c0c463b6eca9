package settings

var Version = "0.1"

var RomFilename = ""
var OutputWav = "output.wav"

// Song table file offset. -1 means "scan for it".
var SongTableOffset = -1

// Song number within the table
var SongNo = 0

// Write one WAV per track instead of a master mixdown
var SplitTracks = false

// Stream result to speaker?
var Stream = false

// Show the termui playback monitor while streaming
var Monitor = false

// Do a code printout of the selected song's tracks
var PrintCode = false

// Print song table stats
var PrintStats = false

// Seconds of silence rendered after the song ends (release tails)
var TrailSeconds = 1.0

// Overrides for the engine parameters of dsp.DefaultConfig(). -1
// keeps the default value; nothing is detected from the ROM.
var EngineFreqOverride = -1
var ReverbOverride = -1

// Max PCM voices before the allocator starts stealing
var PolyphonyLimit = 32

// Print extra debug info
var PrintDebug = false
