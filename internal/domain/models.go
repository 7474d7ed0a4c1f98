package domain

import "time"

// PlayerStatus represents the current state of the media player
type PlayerStatus string

const (
	// StatusPlaying indicates the media is currently playing
	StatusPlaying PlayerStatus = "Playing"
	// StatusPaused indicates the media is paused
	StatusPaused PlayerStatus = "Paused"
	// StatusStopped indicates the media is stopped
	StatusStopped PlayerStatus = "Stopped"
)

// ParseStatus maps an MPRIS PlaybackStatus string to a PlayerStatus.
// Unknown values are treated as stopped.
func ParseStatus(s string) PlayerStatus {
	switch s {
	case "Playing":
		return StatusPlaying
	case "Paused":
		return StatusPaused
	default:
		return StatusStopped
	}
}

// Class returns the CSS class the status bar host uses for this status
func (s PlayerStatus) Class() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// PlayerID identifies a player instance on the bus (its unique bus name).
// It is stable for the lifetime of that instance.
type PlayerID string

// Metadata contains information about the current track
type Metadata struct {
	// Title of the current track
	Title string
	// Artist name (first artist when the player reports several)
	Artist string
	// Album name
	Album string
}

// PlayerState is the last known state of one player
type PlayerState struct {
	ID PlayerID
	// Name is the lowercased bus name, e.g. "org.mpris.mediaplayer2.spotify"
	Name     string
	Status   PlayerStatus
	Metadata Metadata
	// Position and Length are nil when the player does not report them
	Position *time.Duration
	Length   *time.Duration
	// PositionAt is when Position was sampled
	PositionAt time.Time
}

// EventKind tells which bus notification a PlayerEvent carries
type EventKind int

const (
	// EventPlayerAppeared is sent when a player claims an MPRIS name
	EventPlayerAppeared EventKind = iota
	// EventPlayerVanished is sent when a player releases its name
	EventPlayerVanished
	// EventPropertiesChanged carries a full snapshot of the player state
	EventPropertiesChanged
	// EventSeeked carries only a new position
	EventSeeked
)

func (k EventKind) String() string {
	switch k {
	case EventPlayerAppeared:
		return "appeared"
	case EventPlayerVanished:
		return "vanished"
	case EventPropertiesChanged:
		return "properties-changed"
	case EventSeeked:
		return "seeked"
	default:
		return "unknown"
	}
}

// PlayerEvent is a notification from the bus collaborator.
// Which fields are meaningful depends on Kind.
type PlayerEvent struct {
	Kind     EventKind
	ID       PlayerID
	Name     string
	Status   PlayerStatus
	Metadata Metadata
	Position *time.Duration
	Length   *time.Duration
}

// Render is one frame handed to the output collaborator
type Render struct {
	Text  string `json:"text"`
	Class string `json:"class"`
}

// ScrollMode selects what happens when the scrolling text reaches its end
type ScrollMode string

const (
	// ScrollWrapping loops the text continuously
	ScrollWrapping ScrollMode = "wrapping"
	// ScrollReset holds the tail for one tick and restarts from the head
	ScrollReset ScrollMode = "reset"
)

// PositionMode selects how the track position is displayed
type PositionMode string

const (
	// PositionIncreasing shows elapsed time
	PositionIncreasing PositionMode = "increasing"
	// PositionRemaining shows time left in the track
	PositionRemaining PositionMode = "remaining"
)
