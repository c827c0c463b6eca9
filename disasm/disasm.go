package disasm

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/handegar/mp2kemu/base"
	"github.com/handegar/mp2kemu/rom"
	"github.com/handegar/mp2kemu/utils"
)

// One decoded sequence event.
type Line struct {
	Pos  uint32
	Raw  []byte
	Text string
}

// Safety stop for tracks without a FINE
const maxEvents = 4096

// Disassemble decodes the track bytecode at file offset pos into a
// listing. Decoding stops at FINE, at a backwards GOTO (the song
// loop) or after maxEvents.
func Disassemble(r *rom.Rom, pos uint32) ([]Line, error) {
	var lines []Line
	var lastCmd byte
	var lastKey, lastVel uint8

	for n := 0; n < maxEvents; n++ {
		linePos := pos
		cmd, err := r.U8(pos)
		if err != nil {
			return lines, err
		}

		repeated := false
		if cmd < 0x80 {
			if lastCmd < base.CmdVoice {
				return lines, fmt.Errorf("operand 0x%02X without command at 0x%X", cmd, pos)
			}
			cmd = lastCmd
			repeated = true
		} else {
			pos++
			if cmd >= base.CmdVoice {
				lastCmd = cmd
			}
		}

		var text string
		switch {
		case base.IsWait(cmd):
			text = fmt.Sprintf("W%02d", base.LengthTable[cmd-base.CmdWait0])

		case base.IsNote(cmd), cmd == base.CmdTie:
			name := "TIE"
			if base.IsNote(cmd) {
				name = fmt.Sprintf("N%02d", base.LengthTable[cmd-base.CmdNote+1])
			}
			if k, ok, _ := peekOperand(r, &pos); ok {
				lastKey = k
				if v, ok, _ := peekOperand(r, &pos); ok {
					lastVel = v
					if base.IsNote(cmd) {
						if g, ok, _ := peekOperand(r, &pos); ok {
							text = fmt.Sprintf("%s\t %s, v%d, gate+%d", name,
								utils.NoteName(lastKey), lastVel, g)
						}
					}
				}
			}
			if text == "" {
				text = fmt.Sprintf("%s\t %s, v%d", name, utils.NoteName(lastKey), lastVel)
			}

		case cmd == base.CmdEoT:
			if k, ok, _ := peekOperand(r, &pos); ok {
				text = fmt.Sprintf("EOT\t %s", utils.NoteName(k))
			} else {
				text = "EOT"
			}

		default:
			ev, ok := base.Events[cmd]
			if !ok {
				text = fmt.Sprintf("<0x%02X?>", cmd)
				break
			}
			text = ev.Name
			for _, kind := range ev.Args {
				switch kind {
				case base.ArgByte:
					v, err := r.U8(pos)
					if err != nil {
						return lines, err
					}
					pos++
					text += fmt.Sprintf("\t %d", v)
				case base.ArgSByte:
					v, err := r.S8(pos)
					if err != nil {
						return lines, err
					}
					pos++
					text += fmt.Sprintf("\t %d", v)
				case base.ArgPtr:
					v, err := r.U32(pos)
					if err != nil {
						return lines, err
					}
					pos += 4
					text += fmt.Sprintf("\t 0x%08X", v)
				}
			}
		}

		if repeated {
			text = "." + text // running-status shorthand in the ROM
		}

		raw, _ := r.Slice(linePos, pos-linePos)
		lines = append(lines, Line{Pos: linePos, Raw: raw, Text: text})

		if cmd == base.CmdFine {
			break
		}
		if cmd == base.CmdGoto {
			dest, err := r.U32(pos - 4)
			if err != nil {
				return lines, err
			}
			if off, err := r.Ptr(dest); err == nil && off <= linePos {
				break // song loop
			}
		}
	}

	return lines, nil
}

func peekOperand(r *rom.Rom, pos *uint32) (uint8, bool, error) {
	v, err := r.U8(*pos)
	if err != nil {
		return 0, false, err
	}
	if v >= 0x80 {
		return 0, false, nil
	}
	*pos++
	return v, true, nil
}

// PrintListing dumps the decoded tracks of one song to stdout.
func PrintListing(r *rom.Rom, songPos uint32) error {
	nTracks, err := r.U8(songPos)
	if err != nil {
		return err
	}

	head := color.New(color.FgCyan, color.Bold)
	for i := uint8(0); i < nTracks; i++ {
		p, err := r.U32(songPos + base.SongHeaderSize + uint32(i)*4)
		if err != nil {
			return err
		}
		off, err := r.Ptr(p)
		if err != nil {
			return err
		}

		head.Printf(";; Track %d @ 0x%X\n", i, off)
		lines, err := Disassemble(r, off)
		if err != nil {
			utils.Warning("track %d listing truncated: %s", i, err)
		}
		for _, l := range lines {
			fmt.Printf("  0x%06X:  %-28s ;;", l.Pos, l.Text)
			for _, b := range l.Raw {
				fmt.Printf(" %02X", b)
			}
			fmt.Println()
		}
		fmt.Println()
	}
	return nil
}
