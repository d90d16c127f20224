package handlers

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Hints provides random tips to users after successful command execution
type Hints struct {
	cooldowns   map[string]time.Time // guildID -> last hint time
	cooldownMu  sync.RWMutex
	cooldownDur time.Duration
	hintChance  float32
	hints       []string
}

func NewHints() *Hints {
	return &Hints{
		cooldowns:   make(map[string]time.Time),
		cooldownDur: 5 * time.Minute,
		hintChance:  0.15,
		hints: []string{
			"Pro tip: /playlist with auto keeps fetching songs as the playlist plays",
			"Pro tip: /skipto jumps straight to a song in the queue",
			"Pro tip: /play with no song resumes a paused track",
			"Pro tip: /history shows recently played songs",
			"Pro tip: /top shows the most played songs",
			"Pro tip: /play accepts Spotify and Apple Music track links",
			"Pro tip: /remove drops a single song from the queue",
			"Pro tip: /feedback sends a note to the maintainers",
		},
	}
}

// ShouldShowHint rolls for a hint and respects the guild's cooldown.
func (h *Hints) ShouldShowHint(guildID string) (string, bool) {
	if rand.Float32() > h.hintChance {
		return "", false
	}

	h.cooldownMu.Lock()
	defer h.cooldownMu.Unlock()

	if lastHint, ok := h.cooldowns[guildID]; ok && time.Since(lastHint) < h.cooldownDur {
		return "", false
	}
	hint := h.hints[rand.IntN(len(h.hints))]
	h.cooldowns[guildID] = time.Now()

	log.WithFields(log.Fields{"module": "handlers", "guild_id": guildID}).Debugf("Showing hint: %s", hint)
	return hint, true
}

func (h *Hints) ClearCooldown(guildID string) {
	h.cooldownMu.Lock()
	delete(h.cooldowns, guildID)
	h.cooldownMu.Unlock()
}

func (h *Hints) GetCooldownRemaining(guildID string) time.Duration {
	h.cooldownMu.RLock()
	defer h.cooldownMu.RUnlock()
	lastHint, exists := h.cooldowns[guildID]
	if !exists {
		return 0
	}
	return max(h.cooldownDur-time.Since(lastHint), 0)
}

// ShowIfApplicable returns a formatted hint suffix, or "".
func (h *Hints) ShowIfApplicable(guildID string) string {
	if hint, show := h.ShouldShowHint(guildID); show {
		return fmt.Sprintf("\n\n💡 %s", hint)
	}
	return ""
}
