package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/genricoloni/nowbar/internal/domain"
)

// Nerd Font glyphs
const (
	PlayingIcon = ""
	PausedIcon  = ""
)

// DefaultTemplate is used when no format is configured
const DefaultTemplate = "{title} - {artist}"

// playerIcons maps a bus name substring to its glyph, checked in order
var playerIcons = []struct {
	match string
	icon  string
}{
	{"spotify", ""},
	{"vlc", "\U000f057c"},
	{"edge", "\U000f01e9"},
	{"firefox", "\U000f0239"},
	{"mpv", ""},
	{"chrom", ""},
	{"telegramdesktop", ""},
	{"tauon", ""},
}

// StatusIcon returns the glyph for a playback status. Stopped has none.
func StatusIcon(status domain.PlayerStatus) string {
	switch status {
	case domain.StatusPlaying:
		return PlayingIcon
	case domain.StatusPaused:
		return PausedIcon
	default:
		return ""
	}
}

// PlayerIcon returns a glyph for well-known players, or "" when unknown
func PlayerIcon(name string) string {
	name = strings.ToLower(name)
	for _, p := range playerIcons {
		if strings.Contains(name, p.match) {
			return p.icon
		}
	}
	return ""
}

// Format fills {title}, {artist} and {album} in template. Other text is kept
// verbatim and missing fields become empty strings, so separators around an
// empty field stay in place. When includeIcon is set and icon is not empty,
// the icon and one space are prepended. The result is never truncated.
func Format(meta domain.Metadata, template string, icon string, includeIcon bool) string {
	r := strings.NewReplacer(
		"{title}", meta.Title,
		"{artist}", meta.Artist,
		"{album}", meta.Album,
	)
	text := r.Replace(template)
	if includeIcon && icon != "" {
		return icon + " " + text
	}
	return text
}

// Formatter binds a template and icon policy to produce display text
type Formatter struct {
	template    string
	includeIcon bool
	playerIcon  bool
}

// New creates a formatter. playerIcon adds the player glyph before the
// status glyph when includeIcon is set.
func New(template string, includeIcon, playerIcon bool) *Formatter {
	return &Formatter{
		template:    template,
		includeIcon: includeIcon,
		playerIcon:  playerIcon,
	}
}

// Icon returns the combined icon for a player state
func (f *Formatter) Icon(state domain.PlayerState) string {
	icon := StatusIcon(state.Status)
	if !f.playerIcon {
		return icon
	}
	if p := PlayerIcon(state.Name); p != "" {
		if icon == "" {
			return p
		}
		return p + " " + icon
	}
	return icon
}

// Format renders the display text for a player state
func (f *Formatter) Format(state domain.PlayerState) string {
	return Format(state.Metadata, f.template, f.Icon(state), f.includeIcon)
}

// Position renders a duration as mm:ss, or hh:mm:ss from one hour up.
// Negative durations render as zero.
func Position(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	if total >= 3600 {
		return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
