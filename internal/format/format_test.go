package format

import (
	"testing"
	"time"

	"github.com/genricoloni/nowbar/internal/domain"
)

func TestFormat(t *testing.T) {
	full := domain.Metadata{Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera"}

	tests := []struct {
		name        string
		meta        domain.Metadata
		template    string
		icon        string
		includeIcon bool
		expected    string
	}{
		{
			name:     "Default Template",
			meta:     full,
			template: DefaultTemplate,
			expected: "Bohemian Rhapsody - Queen",
		},
		{
			name:     "Empty Artist Keeps Separator",
			meta:     domain.Metadata{Title: "Song"},
			template: "{title} - {artist}",
			expected: "Song - ",
		},
		{
			name:     "All Fields Empty",
			meta:     domain.Metadata{},
			template: "{artist} - {album} - {title}",
			expected: " -  - ",
		},
		{
			name:     "Unknown Tokens Pass Through",
			meta:     full,
			template: "{title} [{year}] {artist",
			expected: "Bohemian Rhapsody [{year}] {artist",
		},
		{
			name:     "Album Placeholder",
			meta:     full,
			template: "{album}: {title}",
			expected: "A Night at the Opera: Bohemian Rhapsody",
		},
		{
			name:     "Placeholder Text In Metadata Not Expanded",
			meta:     domain.Metadata{Title: "{artist}", Artist: "X"},
			template: "{title} - {artist}",
			expected: "{artist} - X",
		},
		{
			name:        "Icon Included",
			meta:        full,
			template:    "{title}",
			icon:        PlayingIcon,
			includeIcon: true,
			expected:    PlayingIcon + " Bohemian Rhapsody",
		},
		{
			name:        "Icon Excluded",
			meta:        full,
			template:    "{title}",
			icon:        PlayingIcon,
			includeIcon: false,
			expected:    "Bohemian Rhapsody",
		},
		{
			name:        "Empty Icon Adds No Space",
			meta:        full,
			template:    "{title}",
			icon:        "",
			includeIcon: true,
			expected:    "Bohemian Rhapsody",
		},
		{
			name:     "Long Text Not Truncated",
			meta:     domain.Metadata{Title: "An Extremely Long Title That Goes On And On And On"},
			template: "{title}",
			expected: "An Extremely Long Title That Goes On And On And On",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.meta, tt.template, tt.icon, tt.includeIcon)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFormat_Idempotent(t *testing.T) {
	meta := domain.Metadata{Title: "Stairway to Heaven", Artist: "Led Zeppelin"}
	first := Format(meta, "{title} - {artist} ({album})", PausedIcon, true)
	second := Format(meta, "{title} - {artist} ({album})", PausedIcon, true)
	if first != second {
		t.Errorf("expected identical output, got %q and %q", first, second)
	}
}

func TestStatusIcon(t *testing.T) {
	if StatusIcon(domain.StatusPlaying) != PlayingIcon {
		t.Error("expected playing icon")
	}
	if StatusIcon(domain.StatusPaused) != PausedIcon {
		t.Error("expected paused icon")
	}
	if StatusIcon(domain.StatusStopped) != "" {
		t.Error("expected no icon for stopped")
	}
}

func TestPlayerIcon(t *testing.T) {
	tests := []struct {
		name  string
		known bool
	}{
		{"org.mpris.MediaPlayer2.spotify", true},
		{"org.mpris.MediaPlayer2.Firefox.instance_1_12", true},
		{"org.mpris.MediaPlayer2.chromium.instance4", true},
		{"org.mpris.MediaPlayer2.mpv", true},
		{"org.mpris.MediaPlayer2.rhythmbox", false},
	}
	for _, tt := range tests {
		if got := PlayerIcon(tt.name); (got != "") != tt.known {
			t.Errorf("PlayerIcon(%s): expected known=%v, got %q", tt.name, tt.known, got)
		}
	}
}

func TestFormatter_Format(t *testing.T) {
	state := domain.PlayerState{
		Name:     "org.mpris.mediaplayer2.spotify",
		Status:   domain.StatusPaused,
		Metadata: domain.Metadata{Title: "Song", Artist: "Band"},
	}

	tests := []struct {
		name      string
		formatter *Formatter
		expected  string
	}{
		{"No Icons", New(DefaultTemplate, false, true), "Song - Band"},
		{"Status Icon", New(DefaultTemplate, true, false), PausedIcon + " Song - Band"},
		{"Player And Status Icon", New(DefaultTemplate, true, true), PlayerIcon("spotify") + " " + PausedIcon + " Song - Band"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.formatter.Format(state); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestPosition(t *testing.T) {
	tests := []struct {
		in       time.Duration
		expected string
	}{
		{0, "00:00"},
		{59*time.Second + 900*time.Millisecond, "00:59"},
		{3*time.Minute + 7*time.Second, "03:07"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{-5 * time.Second, "00:00"},
	}
	for _, tt := range tests {
		if got := Position(tt.in); got != tt.expected {
			t.Errorf("Position(%v): expected %s, got %s", tt.in, tt.expected, got)
		}
	}
}
