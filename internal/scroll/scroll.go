// Package scroll animates a display string inside a fixed-width window.
//
// Offsets count extended grapheme clusters, so a flag emoji or a letter with
// combining accents moves as one unit and is never split across frames.
package scroll

import (
	"strings"
	"time"

	"github.com/genricoloni/nowbar/internal/domain"
	"github.com/rivo/uniseg"
)

// separator is placed between the tail and the restarted head in wrapping mode
const separator = " "

const (
	slowestInterval = 1000 * time.Millisecond
	intervalStep    = 9 * time.Millisecond
)

// Phase is the state of the scroll machine
type Phase int

const (
	// Static means the text fits and ticks are no-ops
	Static Phase = iota
	// Scrolling means the window advances on every tick
	Scrolling
	// Finished holds the tail frame for one tick (reset mode only)
	Finished
)

func (p Phase) String() string {
	switch p {
	case Static:
		return "static"
	case Scrolling:
		return "scrolling"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Interval converts a speed in [0,100] to a tick interval, from 1000ms at
// speed 0 down to 100ms at speed 100. Out of range speeds are clamped.
func Interval(speed int) time.Duration {
	if speed < 0 {
		speed = 0
	}
	if speed > 100 {
		speed = 100
	}
	return slowestInterval - time.Duration(speed)*intervalStep
}

// Engine owns the scroll state for the current display text
type Engine struct {
	width int
	mode  domain.ScrollMode

	text   string
	units  []string
	offset int
	phase  Phase
}

// New creates an engine with an empty text. width is clamped to at least 1.
func New(width int, mode domain.ScrollMode) *Engine {
	if width < 1 {
		width = 1
	}
	return &Engine{width: width, mode: mode, phase: Static}
}

// SetText installs a new text. It returns false and keeps the current
// offset when the text is unchanged; otherwise the offset goes back to 0.
func (e *Engine) SetText(text string) bool {
	if text == e.text && e.units != nil {
		return false
	}
	e.text = text
	e.units = graphemes(text)
	e.restart()
	return true
}

// Rewind moves back to the head of the text without changing it
func (e *Engine) Rewind() {
	e.restart()
}

// Tick advances the machine by one step. It returns false when the text is
// static and nothing moved.
func (e *Engine) Tick() bool {
	switch e.phase {
	case Scrolling:
		e.advance()
		return true
	case Finished:
		e.offset = 0
		e.phase = Scrolling
		return true
	default:
		return false
	}
}

// Window returns the visible part of the text: the whole text when it fits,
// otherwise exactly width units.
func (e *Engine) Window() string {
	if e.phase == Static {
		return e.text
	}
	n := len(e.units)
	if e.mode == domain.ScrollReset {
		return strings.Join(e.units[e.offset:e.offset+e.width], "")
	}

	var b strings.Builder
	for i := 0; i < e.width; i++ {
		j := (e.offset + i) % (n + 1)
		if j == n {
			b.WriteString(separator)
		} else {
			b.WriteString(e.units[j])
		}
	}
	return b.String()
}

// Phase returns the current phase
func (e *Engine) Phase() Phase { return e.phase }

// Offset returns the index of the first visible unit
func (e *Engine) Offset() int { return e.offset }

// Finished reports whether the tail frame is being held
func (e *Engine) Finished() bool { return e.phase == Finished }

// Text returns the full text being scrolled
func (e *Engine) Text() string { return e.text }

// Width returns the visible width in units
func (e *Engine) Width() int { return e.width }

func (e *Engine) restart() {
	e.offset = 0
	if len(e.units) <= e.width {
		e.phase = Static
		return
	}
	e.phase = Scrolling
}

func (e *Engine) advance() {
	n := len(e.units)
	if e.mode == domain.ScrollReset {
		if e.offset+e.width >= n {
			e.phase = Finished
			return
		}
		e.offset++
		return
	}
	e.offset = (e.offset + 1) % n
}

func graphemes(s string) []string {
	units := make([]string, 0, len(s))
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		units = append(units, g.Str())
	}
	return units
}
