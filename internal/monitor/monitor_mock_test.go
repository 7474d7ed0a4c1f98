//go:build linux
// +build linux

package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/genricoloni/nowbar/internal/domain"
	"github.com/genricoloni/nowbar/internal/monitor/mocks"
	"github.com/godbus/dbus/v5"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

// TestFetchPlayerState unifies all scenarios regarding state fetching:
// 1. Success (Happy Path)
// 2. DBus Errors (Connection fail)
// 3. Invalid Data types (Robustness)
func TestFetchPlayerState(t *testing.T) {
	playerName := "org.mpris.MediaPlayer2.spotify"
	metaPath := "org.mpris.MediaPlayer2.Player.Metadata"
	statusPath := "org.mpris.MediaPlayer2.Player.PlaybackStatus"
	positionPath := "org.mpris.MediaPlayer2.Player.Position"
	objPath := "/org/mpris/MediaPlayer2"

	tests := []struct {
		name          string
		setupMock     func(*mocks.MockDBusClient)
		expectError   bool
		expectedEvent *domain.PlayerEvent
	}{
		{
			name: "Success - Valid Metadata",
			setupMock: func(m *mocks.MockDBusClient) {
				// Metadata
				m.EXPECT().GetProperty(playerName, objPath, metaPath).
					Return(dbus.MakeVariant(map[string]dbus.Variant{
						"xesam:title":  dbus.MakeVariant("Stairway to Heaven"),
						"xesam:artist": dbus.MakeVariant([]string{"Led Zeppelin"}),
						"mpris:length": dbus.MakeVariant(int64(482_000_000)),
					}), nil)
				// Status
				m.EXPECT().GetProperty(playerName, objPath, statusPath).
					Return(dbus.MakeVariant("Playing"), nil)
				// Position
				m.EXPECT().GetProperty(playerName, objPath, positionPath).
					Return(dbus.MakeVariant(int64(42_000_000)), nil)
			},
			expectError: false,
			expectedEvent: &domain.PlayerEvent{
				Kind:     domain.EventPropertiesChanged,
				ID:       ":1.100",
				Metadata: domain.Metadata{Title: "Stairway to Heaven", Artist: "Led Zeppelin"},
				Status:   domain.StatusPlaying,
				Position: durationPtr(42 * time.Second),
				Length:   durationPtr(482 * time.Second),
			},
		},
		{
			name: "Success - Position Unsupported",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(playerName, objPath, metaPath).
					Return(dbus.MakeVariant(map[string]dbus.Variant{
						"xesam:title": dbus.MakeVariant("Radio Stream"),
					}), nil)
				m.EXPECT().GetProperty(playerName, objPath, statusPath).
					Return(dbus.MakeVariant("Paused"), nil)
				m.EXPECT().GetProperty(playerName, objPath, positionPath).
					Return(dbus.Variant{}, fmt.Errorf("org.freedesktop.DBus.Error.NotSupported"))
			},
			expectError: false,
			expectedEvent: &domain.PlayerEvent{
				Kind:     domain.EventPropertiesChanged,
				ID:       ":1.100",
				Metadata: domain.Metadata{Title: "Radio Stream"},
				Status:   domain.StatusPaused,
			},
		},
		{
			name: "DBus Error - Connection Fail",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(playerName, objPath, metaPath).
					Return(dbus.MakeVariant(""), fmt.Errorf("connection timeout"))
			},
			expectError:   true,
			expectedEvent: nil,
		},
		{
			name: "DBus Error - Status Fail",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(playerName, objPath, metaPath).
					Return(dbus.MakeVariant(map[string]dbus.Variant{}), nil)
				m.EXPECT().GetProperty(playerName, objPath, statusPath).
					Return(dbus.Variant{}, fmt.Errorf("no reply"))
			},
			expectError:   true,
			expectedEvent: nil,
		},
		{
			name: "Invalid Data - Metadata is Int not Map",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(playerName, objPath, metaPath).
					Return(dbus.MakeVariant(12345), nil) // Wrong type
			},
			expectError:   false, // Should handle gracefully, no error returned
			expectedEvent: nil,   // But no event emitted
		},
		{
			name: "Invalid Data - Status is Int",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(playerName, objPath, metaPath).
					Return(dbus.MakeVariant(map[string]dbus.Variant{}), nil)
				m.EXPECT().GetProperty(playerName, objPath, statusPath).
					Return(dbus.MakeVariant(1), nil)
			},
			expectError:   true,
			expectedEvent: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := mocks.NewMockDBusClient(ctrl)
			tt.setupMock(mockClient)

			mon := NewMprisMonitor(zap.NewNop())
			mon.conn = mockClient
			mon.running = true

			err := mon.fetchPlayerState(playerName, ":1.100")

			// Verify Error Return
			if tt.expectError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}

			// Verify Event Emission
			select {
			case event := <-mon.Events():
				if tt.expectedEvent == nil {
					t.Fatalf("Unexpected event emitted: %+v", event)
				}
				want := tt.expectedEvent
				if event.Kind != want.Kind || event.ID != want.ID {
					t.Errorf("Event identity mismatch: want %v/%s, got %v/%s", want.Kind, want.ID, event.Kind, event.ID)
				}
				if event.Name != playerName {
					t.Errorf("Name mismatch: want %s, got %s", playerName, event.Name)
				}
				if event.Metadata != want.Metadata {
					t.Errorf("Metadata mismatch: want %+v, got %+v", want.Metadata, event.Metadata)
				}
				if event.Status != want.Status {
					t.Errorf("Status mismatch: want %v, got %v", want.Status, event.Status)
				}
				assertDuration(t, "Position", want.Position, event.Position)
				assertDuration(t, "Length", want.Length, event.Length)
			default:
				if tt.expectedEvent != nil {
					t.Error("Expected event was not emitted")
				}
			}
		})
	}
}

// TestDetectExistingPlayers verifies the initial scan of DBus names.
func TestDetectExistingPlayers(t *testing.T) {
	tests := []struct {
		name             string
		setupMock        func(*mocks.MockDBusClient)
		expectError      bool
		expectedEvents   []domain.EventKind
		expectedIDs      []domain.PlayerID
		expectedMappings map[string]string
	}{
		{
			name: "Success - Detects Spotify and VLC",
			setupMock: func(m *mocks.MockDBusClient) {
				// 1. ListNames
				m.EXPECT().ListNames().Return([]string{
					"org.freedesktop.DBus",
					"org.mpris.MediaPlayer2.spotify",
					"org.mpris.MediaPlayer2.vlc",
					"com.example.OtherApp",
				}, nil)

				// 2. GetNameOwner (Mapping)
				m.EXPECT().GetNameOwner("org.mpris.MediaPlayer2.spotify").Return(":1.100", nil)
				m.EXPECT().GetNameOwner("org.mpris.MediaPlayer2.vlc").Return(":1.200", nil)

				// 3. Fetch state for Spotify: metadata, status, position
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.spotify", gomock.Any(), gomock.Any()).
					Return(dbus.MakeVariant(map[string]dbus.Variant{"xesam:title": dbus.MakeVariant("Song A")}), nil)
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.spotify", gomock.Any(), gomock.Any()).
					Return(dbus.MakeVariant("Playing"), nil)
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.spotify", gomock.Any(), gomock.Any()).
					Return(dbus.MakeVariant(int64(0)), nil)

				// 4. Fetch state for VLC
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.vlc", gomock.Any(), gomock.Any()).
					Return(dbus.MakeVariant(map[string]dbus.Variant{"xesam:title": dbus.MakeVariant("Video B")}), nil)
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.vlc", gomock.Any(), gomock.Any()).
					Return(dbus.MakeVariant("Paused"), nil)
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.vlc", gomock.Any(), gomock.Any()).
					Return(dbus.Variant{}, fmt.Errorf("not supported"))
			},
			expectError: false,
			expectedEvents: []domain.EventKind{
				domain.EventPlayerAppeared, domain.EventPropertiesChanged,
				domain.EventPlayerAppeared, domain.EventPropertiesChanged,
			},
			expectedIDs: []domain.PlayerID{":1.100", ":1.100", ":1.200", ":1.200"},
			expectedMappings: map[string]string{
				":1.100": "org.mpris.MediaPlayer2.spotify",
				":1.200": "org.mpris.MediaPlayer2.vlc",
			},
		},
		{
			name: "Owner Lookup Fails - Falls Back to Well-Known Name",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames().Return([]string{"org.mpris.MediaPlayer2.mpv"}, nil)
				m.EXPECT().GetNameOwner("org.mpris.MediaPlayer2.mpv").Return("", fmt.Errorf("no owner"))
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.mpv", gomock.Any(), gomock.Any()).
					Return(dbus.Variant{}, fmt.Errorf("gone")).AnyTimes()
			},
			expectError:      false,
			expectedEvents:   []domain.EventKind{domain.EventPlayerAppeared},
			expectedIDs:      []domain.PlayerID{"org.mpris.MediaPlayer2.mpv"},
			expectedMappings: map[string]string{},
		},
		{
			name: "Failure - ListNames fails",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames().Return(nil, fmt.Errorf("bus error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := mocks.NewMockDBusClient(ctrl)
			tt.setupMock(mockClient)

			mon := NewMprisMonitor(zap.NewNop())
			mon.conn = mockClient
			mon.running = true

			err := mon.detectExistingPlayers()

			// Check Error
			if tt.expectError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}

			// Check Mappings
			if len(mon.playerNames) != len(tt.expectedMappings) {
				t.Errorf("Mapping count mismatch: want %d, got %d", len(tt.expectedMappings), len(mon.playerNames))
			}
			for k, v := range tt.expectedMappings {
				if mon.playerNames[k] != v {
					t.Errorf("Mapping mismatch for %s: want %s, got %s", k, v, mon.playerNames[k])
				}
			}

			// Drain channel
			var events []domain.PlayerEvent
			for len(mon.Events()) > 0 {
				events = append(events, <-mon.Events())
			}
			if len(events) != len(tt.expectedEvents) {
				t.Fatalf("Expected %d events, got %d", len(tt.expectedEvents), len(events))
			}
			for i, ev := range events {
				if ev.Kind != tt.expectedEvents[i] {
					t.Errorf("Event %d: expected kind %v, got %v", i, tt.expectedEvents[i], ev.Kind)
				}
				if ev.ID != tt.expectedIDs[i] {
					t.Errorf("Event %d: expected id %s, got %s", i, tt.expectedIDs[i], ev.ID)
				}
			}
		})
	}
}

func assertDuration(t *testing.T, field string, want, got *time.Duration) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("%s: expected nil, got %v", field, *got)
	case want != nil && got == nil:
		t.Errorf("%s: expected %v, got nil", field, *want)
	case want != nil && *want != *got:
		t.Errorf("%s: expected %v, got %v", field, *want, *got)
	}
}
