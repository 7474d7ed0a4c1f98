//go:build linux
// +build linux

package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/nowbar/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisPath       = "/org/mpris/MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"

	propMetadata = playerInterface + ".Metadata"
	propStatus   = playerInterface + ".PlaybackStatus"
	propPosition = playerInterface + ".Position"

	signalPropertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
	signalNameOwnerChanged  = "org.freedesktop.DBus.NameOwnerChanged"
	signalSeeked            = playerInterface + ".Seeked"
)

// MprisMonitor monitors media players via the D-Bus MPRIS interface
type MprisMonitor struct {
	logger          *zap.Logger
	events          chan domain.PlayerEvent
	done            chan struct{}     // Closed by Stop to release blocked producers
	mu              sync.RWMutex
	running         bool
	cancel          context.CancelFunc
	conn            DBusClient        // Interface for testability
	lastDropWarning time.Time         // Rate limiting for "channel full" warnings
	wg              sync.WaitGroup    // Tracks active producer goroutines
	playerNames     map[string]string // Maps unique bus names (:1.45) to well-known names (org.mpris.MediaPlayer2.spotify)
}

// NewMprisMonitor creates a new MPRIS monitor instance
func NewMprisMonitor(logger *zap.Logger) *MprisMonitor {
	return &MprisMonitor{
		logger:      logger,
		events:      make(chan domain.PlayerEvent, 10),
		done:        make(chan struct{}),
		playerNames: make(map[string]string),
	}
}

// Start begins monitoring for player events
func (m *MprisMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true

	monitorCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.logger.Info("MPRIS monitor started")

	// Connect to Session Bus (this may block)
	conn, err := NewStdDBusClient()
	if err != nil {
		m.logger.Error("Failed to connect to session bus", zap.Error(err))
		m.mu.Lock()
		defer m.mu.Unlock()
		m.running = false
		m.cancel = nil
		return fmt.Errorf("session bus connection failed: %w", err)
	}

	// Check if we were stopped while connecting to D-Bus
	select {
	case <-monitorCtx.Done():
		m.logger.Info("Monitor stopped during D-Bus connection")
		if err := conn.Close(); err != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
		}
		return monitorCtx.Err()
	default:
	}

	// Protect connection assignment with mutex to avoid race with Stop()
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	if err := m.subscribe(); err != nil {
		return err
	}

	// Listen before scanning so players appearing during the scan are not missed
	m.wg.Add(1)
	go m.monitorSignals(monitorCtx)

	m.wg.Add(1)
	func() {
		defer m.wg.Done()
		if err := m.detectExistingPlayers(); err != nil {
			m.logger.Warn("Failed to detect existing players", zap.Error(err))
		}
	}()

	// Block until context is cancelled
	<-monitorCtx.Done()

	m.logger.Info("MPRIS monitor stopped")
	return monitorCtx.Err()
}

// subscribe adds the match rules for every signal the monitor handles
func (m *MprisMonitor) subscribe() error {
	if err := m.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		m.logger.Error("Failed to add match signal", zap.Error(err))
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	if err := m.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface(playerInterface),
		dbus.WithMatchMember("Seeked"),
	); err != nil {
		// Non-fatal, positions are refreshed on the next property change
		m.logger.Warn("Failed to add Seeked match signal", zap.Error(err))
	}

	// Track new/removed players dynamically
	if err := m.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		m.logger.Warn("Failed to add NameOwnerChanged match signal", zap.Error(err))
	} else {
		m.logger.Info("Dynamic player tracking enabled via NameOwnerChanged")
	}
	return nil
}

// Stop gracefully stops the monitor
func (m *MprisMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()

	if !m.running {
		m.mu.Unlock()
		return nil
	}

	if m.cancel != nil {
		m.cancel()
	}

	m.running = false
	close(m.done)
	m.mu.Unlock()

	// Wait for all producer goroutines to terminate before closing channel
	// This prevents "send on closed channel" panic
	m.logger.Debug("Waiting for monitoring goroutines to finish")
	m.wg.Wait()

	close(m.events)

	m.mu.Lock()
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
		}
	}
	m.mu.Unlock()

	m.logger.Info("MPRIS monitor shutdown complete")
	return nil
}

// Events returns a read-only channel of player events
func (m *MprisMonitor) Events() <-chan domain.PlayerEvent {
	return m.events
}

// detectExistingPlayers queries D-Bus for currently running MPRIS players
func (m *MprisMonitor) detectExistingPlayers() error {
	names, err := m.conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	playerCount := 0
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		playerCount++
		m.logger.Info("Detected MPRIS player", zap.String("name", name))

		// Signals arrive from the unique name, so that is the player id
		id := name
		if uniqueName, err := m.conn.GetNameOwner(name); err == nil {
			id = uniqueName
			m.mu.Lock()
			m.playerNames[uniqueName] = name
			m.mu.Unlock()
			m.logger.Debug("Mapped player name",
				zap.String("unique", uniqueName),
				zap.String("wellKnown", name))
		}

		m.emit(domain.PlayerEvent{
			Kind: domain.EventPlayerAppeared,
			ID:   domain.PlayerID(id),
			Name: name,
		})

		if err := m.fetchPlayerState(name, domain.PlayerID(id)); err != nil {
			m.logger.Warn("Failed to fetch initial state",
				zap.String("player", name),
				zap.Error(err))
		}
	}

	m.logger.Info("Player detection complete", zap.Int("count", playerCount))
	return nil
}

// fetchPlayerState reads the full state of a player and emits it
func (m *MprisMonitor) fetchPlayerState(busName string, id domain.PlayerID) error {
	variant, err := m.conn.GetProperty(busName, mprisPath, propMetadata)
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	// SAFE CAST: Some players may return nil or unexpected types if not playing anything
	metadata, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		m.logger.Debug("Metadata variant is not a map, skipping", zap.String("player", busName))
		return nil
	}

	statusVariant, err := m.conn.GetProperty(busName, mprisPath, propStatus)
	if err != nil {
		return fmt.Errorf("failed to get playback status: %w", err)
	}

	status, ok := statusVariant.Value().(string)
	if !ok {
		return fmt.Errorf("invalid playback status format")
	}

	ev := m.propertiesEvent(id, busName, metadata, status, m.fetchPosition(busName))
	if m.emit(ev) {
		m.logger.Debug("Emitted initial state",
			zap.String("player", busName),
			zap.String("title", ev.Metadata.Title))
	}
	return nil
}

// fetchPosition reads the Position property. Players that do not support
// it return nil.
func (m *MprisMonitor) fetchPosition(busName string) *time.Duration {
	variant, err := m.conn.GetProperty(busName, mprisPath, propPosition)
	if err != nil {
		return nil
	}
	return microseconds(variant.Value())
}

// monitorSignals listens for D-Bus signals and processes them
func (m *MprisMonitor) monitorSignals(ctx context.Context) {
	defer m.wg.Done() // Signal completion when goroutine exits

	signals := make(chan *dbus.Signal, 10)
	m.conn.Signal(signals)

	m.logger.Info("Signal monitoring goroutine started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Signal monitoring goroutine stopped")
			return
		case sig := <-signals:
			if sig == nil {
				continue
			}
			switch sig.Name {
			case signalNameOwnerChanged:
				m.handleNameOwnerChanged(sig)
			case signalSeeked:
				m.handleSeeked(sig)
			default:
				m.handleSignal(sig)
			}
		}
	}
}

// handleNameOwnerChanged processes NameOwnerChanged signals to track player lifecycle
func (m *MprisMonitor) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}

	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, mprisPrefix) {
		return // Not an MPRIS player
	}

	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	if oldOwner != "" {
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		m.mu.Unlock()

		m.logger.Info("MPRIS player removed",
			zap.String("player", name),
			zap.String("unique", oldOwner))
		m.emit(domain.PlayerEvent{Kind: domain.EventPlayerVanished, ID: domain.PlayerID(oldOwner)})
	}

	if newOwner != "" {
		m.mu.Lock()
		m.playerNames[newOwner] = name
		m.mu.Unlock()

		m.logger.Info("New MPRIS player detected",
			zap.String("player", name),
			zap.String("unique", newOwner))
		m.emit(domain.PlayerEvent{Kind: domain.EventPlayerAppeared, ID: domain.PlayerID(newOwner), Name: name})

		if err := m.fetchPlayerState(name, domain.PlayerID(newOwner)); err != nil {
			m.logger.Warn("Failed to fetch state from new player",
				zap.String("player", name),
				zap.Error(err))
		}
	}
}

// handleSeeked forwards a position jump
func (m *MprisMonitor) handleSeeked(sig *dbus.Signal) {
	if len(sig.Body) < 1 {
		return
	}
	pos := microseconds(sig.Body[0])
	if pos == nil {
		m.logger.Debug("Invalid Seeked payload, ignoring", zap.String("sender", sig.Sender))
		return
	}
	m.emit(domain.PlayerEvent{
		Kind:     domain.EventSeeked,
		ID:       domain.PlayerID(sig.Sender),
		Position: pos,
	})
}

// handleSignal processes a PropertiesChanged signal
func (m *MprisMonitor) handleSignal(sig *dbus.Signal) {
	// PropertiesChanged signal has 3 arguments:
	// 1. Interface name (string)
	// 2. Changed properties (map[string]Variant)
	// 3. Invalidated properties ([]string)

	if sig.Name != signalPropertiesChanged {
		return
	}

	if len(sig.Body) < 2 {
		return
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok || interfaceName != playerInterface {
		return
	}

	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	playerName := m.getPlayerName(sig.Sender)

	m.logger.Debug("Received PropertiesChanged signal",
		zap.String("sender", sig.Sender),
		zap.String("player", playerName),
		zap.Int("properties", len(changedProps)))

	metadataVariant, hasMetadata := changedProps["Metadata"]
	statusVariant, hasStatus := changedProps["PlaybackStatus"]

	if !hasMetadata && !hasStatus {
		return
	}

	var metadata map[string]dbus.Variant
	var status string

	if hasMetadata {
		var ok bool
		metadata, ok = metadataVariant.Value().(map[string]dbus.Variant)
		if !ok {
			m.logger.Warn("Invalid metadata format in signal, ignoring")
			return
		}
	}

	if hasStatus {
		var ok bool
		status, ok = statusVariant.Value().(string)
		if !ok {
			m.logger.Warn("Invalid playback status format in signal, ignoring")
			return
		}
	} else {
		variant, err := m.conn.GetProperty(sig.Sender, mprisPath, propStatus)
		if err == nil {
			if s, ok := variant.Value().(string); ok {
				status = s
			}
		}
	}

	// The event replaces the whole state, so fill in what the signal left out
	if !hasMetadata {
		variant, err := m.conn.GetProperty(sig.Sender, mprisPath, propMetadata)
		if err == nil {
			if md, ok := variant.Value().(map[string]dbus.Variant); ok {
				metadata = md
			}
		}
	}

	var position *time.Duration
	if v, ok := changedProps["Position"]; ok {
		position = microseconds(v.Value())
	}
	if position == nil {
		position = m.fetchPosition(sig.Sender)
	}

	ev := m.propertiesEvent(domain.PlayerID(sig.Sender), playerName, metadata, status, position)
	if m.emit(ev) {
		m.logger.Info("Media change detected",
			zap.String("player", playerName),
			zap.String("title", ev.Metadata.Title),
			zap.String("artist", ev.Metadata.Artist),
			zap.String("status", string(ev.Status)))
	}
}

// propertiesEvent builds a full-state event from raw MPRIS values
func (m *MprisMonitor) propertiesEvent(id domain.PlayerID, name string, metadata map[string]dbus.Variant, status string, position *time.Duration) domain.PlayerEvent {
	meta, length := m.parseMetadata(metadata)
	return domain.PlayerEvent{
		Kind:     domain.EventPropertiesChanged,
		ID:       id,
		Name:     name,
		Status:   domain.ParseStatus(status),
		Metadata: meta,
		Position: position,
		Length:   length,
	}
}

// parseMetadata converts MPRIS metadata to the domain model and the track length
func (m *MprisMonitor) parseMetadata(metadata map[string]dbus.Variant) (domain.Metadata, *time.Duration) {
	var meta domain.Metadata
	if metadata == nil {
		return meta, nil
	}

	if titleVar, ok := metadata["xesam:title"]; ok {
		if title, ok := titleVar.Value().(string); ok {
			meta.Title = title
		}
	}

	// Artist and album should be arrays, some players send a plain string
	if artistVar, ok := metadata["xesam:artist"]; ok {
		if artist, ok := firstString(artistVar.Value()); ok {
			meta.Artist = artist
		} else {
			m.logger.Debug("Unexpected artist type in metadata",
				zap.String("type", fmt.Sprintf("%T", artistVar.Value())))
		}
	}

	if albumVar, ok := metadata["xesam:album"]; ok {
		if album, ok := firstString(albumVar.Value()); ok {
			meta.Album = album
		}
	}

	var length *time.Duration
	if lengthVar, ok := metadata["mpris:length"]; ok {
		length = microseconds(lengthVar.Value())
	}

	return meta, length
}

// emit sends an event, blocking when the consumer is behind. Lifecycle
// events cannot be dropped without leaving stale players behind.
// It returns false if the monitor was stopped first.
func (m *MprisMonitor) emit(ev domain.PlayerEvent) bool {
	select {
	case m.events <- ev:
		return true
	default:
	}

	m.logChannelFullWarning()
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

// getPlayerName returns the well-known player name for a unique bus name
// Falls back to the unique name if no mapping exists
func (m *MprisMonitor) getPlayerName(uniqueName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if wellKnown, ok := m.playerNames[uniqueName]; ok {
		return wellKnown
	}
	return uniqueName
}

// logChannelFullWarning logs a warning about channel being full, but rate-limited
// to avoid log spam during rapid track changes (e.g., fast skipping)
func (m *MprisMonitor) logChannelFullWarning() {
	m.mu.Lock()
	defer m.mu.Unlock()

	const warningInterval = 5 * time.Second
	now := time.Now()

	if now.Sub(m.lastDropWarning) >= warningInterval {
		m.logger.Warn("Events channel full, waiting for the engine to catch up")
		m.lastDropWarning = now
	}
}

func firstString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case []string:
		if len(s) > 0 {
			return s[0], true
		}
		return "", true
	case string:
		return s, true
	default:
		return "", false
	}
}

// microseconds converts an MPRIS time value (int64 microseconds, though
// some players use unsigned or 32-bit integers) to a duration
func microseconds(v interface{}) *time.Duration {
	var us int64
	switch n := v.(type) {
	case int64:
		us = n
	case uint64:
		us = int64(n)
	case int32:
		us = int64(n)
	case uint32:
		us = int64(n)
	default:
		return nil
	}
	d := time.Duration(us) * time.Microsecond
	return &d
}
