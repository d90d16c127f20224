package discord

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestParseButtonCustomID(t *testing.T) {
	tests := []struct {
		name        string
		customID    string
		wantAction  string
		wantGuildID string
		wantOK      bool
	}{
		{
			name:        "valid play/pause",
			customID:    "np:playpause:123456789",
			wantAction:  "playpause",
			wantGuildID: "123456789",
			wantOK:      true,
		},
		{
			name:        "valid skip",
			customID:    "np:skip:987654321",
			wantAction:  "skip",
			wantGuildID: "987654321",
			wantOK:      true,
		},
		{
			name:        "valid queue",
			customID:    "np:queue:123123123",
			wantAction:  "queue",
			wantGuildID: "123123123",
			wantOK:      true,
		},
		{
			name:     "invalid prefix",
			customID: "invalid:skip:123456789",
		},
		{
			name:     "missing parts",
			customID: "np:skip",
		},
		{
			name:     "too many parts",
			customID: "np:skip:123:456",
		},
		{
			name:     "empty string",
			customID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotAction, gotGuildID, gotOK := ParseButtonCustomID(tt.customID)
			if gotAction != tt.wantAction {
				t.Errorf("ParseButtonCustomID() action = %q, want %q", gotAction, tt.wantAction)
			}
			if gotGuildID != tt.wantGuildID {
				t.Errorf("ParseButtonCustomID() guildID = %q, want %q", gotGuildID, tt.wantGuildID)
			}
			if gotOK != tt.wantOK {
				t.Errorf("ParseButtonCustomID() ok = %v, want %v", gotOK, tt.wantOK)
			}
		})
	}
}

func TestBuildPlaybackButtons(t *testing.T) {
	tests := []struct {
		name    string
		guildID string
		paused  bool
	}{
		{name: "playing state", guildID: "123456789"},
		{name: "paused state", guildID: "987654321", paused: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			components := BuildPlaybackButtons(tt.guildID, tt.paused)
			if len(components) != 1 {
				t.Fatalf("Expected 1 action row, got %d", len(components))
			}

			row, ok := components[0].(discordgo.ActionsRow)
			if !ok {
				t.Fatal("Component is not an ActionsRow")
			}

			expected := []struct {
				action string
				emoji  string
			}{
				{"playpause", getPlayPauseEmoji(tt.paused)},
				{"skip", "⏭️"},
				{"stop", "⏹️"},
				{"queue", "📜"},
			}
			if len(row.Components) != len(expected) {
				t.Fatalf("Expected %d buttons, got %d", len(expected), len(row.Components))
			}

			for i, want := range expected {
				btn, ok := row.Components[i].(discordgo.Button)
				if !ok {
					t.Errorf("Component %d is not a Button", i)
					continue
				}
				if btn.CustomID != "np:"+want.action+":"+tt.guildID {
					t.Errorf("Button %d: unexpected CustomID %q", i, btn.CustomID)
				}
				if btn.Emoji == nil || btn.Emoji.Name != want.emoji {
					t.Errorf("Button %d: expected emoji %q", i, want.emoji)
				}

				action, guildID, ok := ParseButtonCustomID(btn.CustomID)
				if !ok || action != want.action || guildID != tt.guildID {
					t.Errorf("Button %d: CustomID %q does not round-trip", i, btn.CustomID)
				}
				if !strings.HasPrefix(btn.CustomID, "np:") {
					t.Errorf("Button %d: CustomID should start with 'np:'", i)
				}
			}
		})
	}
}

func TestGetPlayPauseEmoji(t *testing.T) {
	if got := getPlayPauseEmoji(false); got != "⏸️" {
		t.Errorf("getPlayPauseEmoji(false) = %q, want pause", got)
	}
	if got := getPlayPauseEmoji(true); got != "▶️" {
		t.Errorf("getPlayPauseEmoji(true) = %q, want play", got)
	}
}
