package world

import "time"

// Tuning constants for the action economy. These are the stated design
// points; everything environment-dependent lives in internal/config.

// Minimum interval between submissions, by action kind.
var actionCooldowns = map[string]time.Duration{
	"whisper":     1500 * time.Millisecond,
	"sing":        4 * time.Second,
	"pulse":       2500 * time.Millisecond,
	"emote":       2 * time.Second,
	"echo":        20 * time.Second,
	"echo_ignite": time.Second,
	"star_lit":    time.Second,
	"friend":      time.Second,
	"teleport":    10 * time.Second,
	"speaking":    500 * time.Millisecond,
}

// Flat experience reward per action kind, independent of audience size.
var actionXP = map[string]int{
	"whisper":     4,
	"sing":        6,
	"pulse":       5,
	"emote":       3,
	"echo":        12,
	"echo_ignite": 2,
	"star_lit":    1, // per newly lit marker
	"friend":      10,
}

// XP granted when one of your trust edges crosses the notable threshold.
const notableConnectionXP = 15

// Proximity-weighted trust gains: base amount and radius per ambient kind.
var trustGains = map[string]struct{ Base, Radius float64 }{
	"sing":     {5.0, 400},
	"pulse":    {3.0, 300},
	"emote":    {2.0, 250},
	"speaking": {1.5, 300},
}

// Text limits after sanitization.
const (
	maxNameLen      = 24
	maxWhisperLen   = 240
	maxEmoteLen     = 48
	maxEchoLen      = 280
	maxUtteranceLen = 120
	maxStarBatch    = 16
	maxStarIDLen    = 64
)

// levelThresholds is the monotonic cumulative-XP table; level is the index
// of the highest threshold reached. Past the table, each level costs
// another 5000.
var levelThresholds = []int{0, 50, 150, 350, 700, 1200, 2000, 3200, 5000, 7500, 11000}

const xpPerLevelBeyondTable = 5000

// LevelForXP maps cumulative experience to a level. Pure and monotonic.
func LevelForXP(xp int) int {
	if xp < 0 {
		return 0
	}
	for i := len(levelThresholds) - 1; i >= 0; i-- {
		if xp >= levelThresholds[i] {
			if i == len(levelThresholds)-1 {
				return i + (xp-levelThresholds[i])/xpPerLevelBeyondTable
			}
			return i
		}
	}
	return 0
}
