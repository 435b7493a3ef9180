package world

import (
	"fmt"
	"log"
	"math"
	"math/rand"
)

// Wisp is an autonomous non-player entity, simulated entirely inside the
// tick. All transient expression state is self-contained decrementing
// counters, so a wisp is trivially snapshot-able and owns no timers.
type Wisp struct {
	ID          string
	Name        string
	Realm       string
	Personality string

	X, Y    float64
	VX, VY  float64
	Heading float64

	// Excitement rises near activity and decays otherwise, always in [0,1].
	Excitement float64

	Trust   TrustMap        // edges toward sessions only, never other wisps
	Greeted map[string]bool // sessions already greeted, reset probabilistically

	Utterance      string
	UtteranceTicks int
	Singing        float64 // pulse-per-tick decayed intensities
	Pulsing        float64

	chatCooldown  int
	reactCooldown int
}

// Personality tags. Each parameterizes movement and social eagerness.
const (
	PersonalitySocial   = "social"
	PersonalityExplorer = "explorer"
	PersonalityMystic   = "mystic"
)

type personalityParams struct {
	BaseSpeed    float64 // acceleration along heading per tick
	PerturbOdds  float64 // chance per tick of a random heading change
	WalkVariance float64 // magnitude of that change, radians
	GreetOdds    float64 // chance per tick of greeting an ungreeted neighbor
	ChatBias     float64 // multiplier on ambient speech probability
}

var personalities = map[string]personalityParams{
	PersonalitySocial:   {BaseSpeed: 0.55, PerturbOdds: 0.10, WalkVariance: 0.5, GreetOdds: 0.020, ChatBias: 1.0},
	PersonalityExplorer: {BaseSpeed: 0.85, PerturbOdds: 0.25, WalkVariance: 1.2, GreetOdds: 0.010, ChatBias: 0.6},
	PersonalityMystic:   {BaseSpeed: 0.30, PerturbOdds: 0.03, WalkVariance: 0.4, GreetOdds: 0.006, ChatBias: 0.8},
}

var personalityTags = []string{PersonalitySocial, PersonalityExplorer, PersonalityMystic}

// Movement constants: first-order smoothing, not simulated dynamics.
const (
	wispDamping       = 0.94
	wispOrbitDistance = 80.0  // social wisps orbit inside this
	wispSeekDistance  = 500.0 // and seek sessions inside this
	proximityRadius   = 600.0 // excitement counts sessions inside this
	reactRadius       = 400.0 // player actions are felt inside this
	gravityMinDist    = 120.0 // social gravity band
	gravityMaxDist    = 900.0
	gravityAccel      = 0.35
)

var wispNames = []string{
	"Ashen", "Briar", "Cinder", "Dew", "Ember", "Fen",
	"Gossam", "Hollow", "Iris", "Juniper", "Kite", "Lumen",
	"Moth", "Nettle", "Opal", "Pale", "Quill", "Rime",
	"Sorrel", "Thistle", "Umber", "Vesper", "Willow", "Yarrow",
}

// Utterance pools. Social wisps are inquisitive, mystics contemplative,
// explorers somewhere in between.
var greetings = []string{
	"oh! hello there",
	"a light I haven't met",
	"you came back",
	"welcome, drifting one",
}

var inquisitivePool = []string{
	"what did you bring with you?",
	"have you seen the far stars?",
	"who lit that one, do you think?",
	"stay a while?",
	"I wonder where the echoes go",
}

var contemplativePool = []string{
	"the dark here is soft",
	"everything dims, given time",
	"some lights outlast their keepers",
	"quiet is also a song",
	"the origin pulls at all of us",
}

var wanderPool = []string{
	"there's more past the boundary, I'm sure of it",
	"I counted nine hollows today",
	"the edge hums if you get close",
}

var reactionPool = []string{
	"oh, that was lovely",
	"do that again!",
	"I felt that from here",
	"warmer already",
}

// spawnWisp creates a wisp at a random bearing and radius from the realm
// origin. Called under the world lock by population control.
func (w *World) spawnWisp(realm string) *Wisp {
	tag := personalityTags[w.rng.Intn(len(personalityTags))]
	bearing := w.rng.Float64() * 2 * math.Pi
	radius := 200 + w.rng.Float64()*600

	wisp := &Wisp{
		ID:          fmt.Sprintf("wisp_%d", w.nextWispID()),
		Name:        wispNames[w.rng.Intn(len(wispNames))],
		Realm:       realm,
		Personality: tag,
		X:           math.Cos(bearing) * radius,
		Y:           math.Sin(bearing) * radius,
		Heading:     w.rng.Float64() * 2 * math.Pi,
		Excitement:  0.1,
		Trust:       make(TrustMap),
		Greeted:     make(map[string]bool),
	}
	w.wisps[wisp.ID] = wisp
	return wisp
}

// populationControl keeps each realm's combined population inside
// [floor, floor+headroom], nudging rather than stepping: spawn/despawn
// happen with low per-tick probability so the change feels organic.
func (w *World) populationControl() {
	floor := w.limits.PopulationFloor
	ceiling := floor + w.limits.PopulationHeadroom

	for _, realm := range w.realms.Names() {
		sessions := 0
		for _, s := range w.sessions {
			if s.Realm == realm {
				sessions++
			}
		}
		var realmWisps []*Wisp
		for _, wisp := range w.wisps {
			if wisp.Realm == realm {
				realmWisps = append(realmWisps, wisp)
			}
		}
		total := sessions + len(realmWisps)

		switch {
		case total < floor && w.rng.Float64() < 0.02:
			wisp := w.spawnWisp(realm)
			log.Printf("✨ wisp %s (%s) drifted into %s", wisp.Name, wisp.Personality, realm)
		case total > ceiling && len(realmWisps) > 0 && w.rng.Float64() < 0.02:
			gone := realmWisps[w.rng.Intn(len(realmWisps))]
			delete(w.wisps, gone.ID)
			log.Printf("💨 wisp %s faded from %s", gone.Name, realm)
		}
	}
}

// update advances one wisp by one tick given the sessions in its realm.
// Pure state transition plus queued utterance/emission flags; broadcasting
// happens via the snapshot.
func (wisp *Wisp) update(realmSessions []*Session, rng *rand.Rand, softBoundary float64) {
	params := personalities[wisp.Personality]

	// Nearest session and proximity count drive excitement.
	var nearest *Session
	nearestDist := math.MaxFloat64
	nearby := 0
	for _, s := range realmSessions {
		d := dist(wisp.X, wisp.Y, s.X, s.Y)
		if d < nearestDist {
			nearestDist = d
			nearest = s
		}
		if d < proximityRadius {
			nearby++
		}
	}
	if nearby > 0 {
		wisp.Excitement = math.Min(1, wisp.Excitement+0.02*float64(nearby))
	} else {
		wisp.Excitement = math.Max(0, wisp.Excitement-0.005)
	}

	// Steering.
	if wisp.Personality == PersonalitySocial && nearest != nil &&
		nearestDist > wispOrbitDistance && nearestDist < wispSeekDistance {
		wisp.Heading = math.Atan2(nearest.Y-wisp.Y, nearest.X-wisp.X)
	} else if wisp.Personality == PersonalitySocial && nearest != nil && nearestDist <= wispOrbitDistance {
		// Close enough: orbit gently instead of crowding.
		wisp.Heading = math.Atan2(nearest.Y-wisp.Y, nearest.X-wisp.X) + math.Pi/2
	} else if rng.Float64() < params.PerturbOdds {
		wisp.Heading += (rng.Float64() - 0.5) * 2 * params.WalkVariance
	}

	// Soft boundary: blend heading 80/20 toward the inward bearing once the
	// wisp drifts too far from the realm origin.
	if d := math.Hypot(wisp.X, wisp.Y); d > softBoundary {
		inward := math.Atan2(-wisp.Y, -wisp.X)
		wisp.Heading = blendAngle(inward, wisp.Heading, 0.8)
	}

	// Heading-projected acceleration with fixed damping. Smooth and
	// inertial without a physics integrator.
	wisp.VX = (wisp.VX + math.Cos(wisp.Heading)*params.BaseSpeed*0.15) * wispDamping
	wisp.VY = (wisp.VY + math.Sin(wisp.Heading)*params.BaseSpeed*0.15) * wispDamping
	wisp.X += wisp.VX
	wisp.Y += wisp.VY

	// One-time greeting for the nearest session.
	if nearest != nil && nearestDist < wispSeekDistance && !wisp.Greeted[nearest.ID] {
		if rng.Float64() < params.GreetOdds*(1+wisp.Excitement) {
			wisp.say(greetings[rng.Intn(len(greetings))])
			wisp.Greeted[nearest.ID] = true
		}
	}
	// Forget greetings occasionally so long-absent players get greeted again.
	if len(wisp.Greeted) > 0 && rng.Float64() < 0.0004 {
		wisp.Greeted = make(map[string]bool)
	}

	// Ambient speech, gated by cooldown, excitement, and personality bias.
	if wisp.chatCooldown == 0 && rng.Float64() < 0.0015*(0.5+wisp.Excitement)*params.ChatBias {
		wisp.say(wisp.pickUtterance(rng))
		wisp.chatCooldown = 200
	}

	// Spontaneous singing/pulsing scales with excitement.
	if rng.Float64() < 0.004*wisp.Excitement {
		if rng.Float64() < 0.5 {
			wisp.Singing = 1
		} else {
			wisp.Pulsing = 1
		}
	}

	wisp.tickTimers()
}

// tickTimers decays the self-contained expression counters.
func (wisp *Wisp) tickTimers() {
	if wisp.UtteranceTicks > 0 {
		wisp.UtteranceTicks--
		if wisp.UtteranceTicks == 0 {
			wisp.Utterance = ""
		}
	}
	if wisp.Singing > 0 {
		wisp.Singing = math.Max(0, wisp.Singing-0.02)
	}
	if wisp.Pulsing > 0 {
		wisp.Pulsing = math.Max(0, wisp.Pulsing-0.03)
	}
	if wisp.chatCooldown > 0 {
		wisp.chatCooldown--
	}
	if wisp.reactCooldown > 0 {
		wisp.reactCooldown--
	}
}

func (wisp *Wisp) say(text string) {
	wisp.Utterance = sanitize(text, maxUtteranceLen)
	wisp.UtteranceTicks = 120 // six seconds at 20 TPS
}

func (wisp *Wisp) pickUtterance(rng *rand.Rand) string {
	switch wisp.Personality {
	case PersonalityMystic:
		return contemplativePool[rng.Intn(len(contemplativePool))]
	case PersonalityExplorer:
		return wanderPool[rng.Intn(len(wanderPool))]
	default:
		return inquisitivePool[rng.Intn(len(inquisitivePool))]
	}
}

// React is invoked by the action handlers when a player action lands within
// reactRadius of the wisp. It raises excitement, grows the wisp's edge
// toward the actor, and may echo the action back. Called under the world
// lock.
func (wisp *Wisp) React(kind string, distance float64, actorID string, rng *rand.Rand) {
	if distance > reactRadius {
		return
	}

	wisp.Excitement = math.Min(1, wisp.Excitement+0.15)
	wisp.Trust.Strengthen(actorID, 3*proximityScale(distance, reactRadius))

	if wisp.reactCooldown > 0 {
		return
	}
	if rng.Float64() > proximityScale(distance, reactRadius) {
		return
	}
	wisp.reactCooldown = 60 // three seconds at 20 TPS

	switch kind {
	case "sing":
		wisp.Singing = 1
	case "pulse":
		wisp.Pulsing = 1
	default:
		wisp.say(reactionPool[rng.Intn(len(reactionPool))])
	}
}

// applyGravity nudges the wisp toward sessions it holds strong edges
// toward, proportional to edge strength and bounded to the interaction
// band. Runs after trust decay so it sees this tick's values.
func (wisp *Wisp) applyGravity(realmSessions []*Session) {
	for _, s := range realmSessions {
		edge, ok := wisp.Trust[s.ID]
		if !ok || edge < GravityThreshold {
			continue
		}
		d := dist(wisp.X, wisp.Y, s.X, s.Y)
		if d < gravityMinDist || d > gravityMaxDist {
			continue
		}
		pull := gravityAccel * (edge / TrustMax)
		wisp.VX += (s.X - wisp.X) / d * pull
		wisp.VY += (s.Y - wisp.Y) / d * pull
	}
}

// blendAngle blends toward target by weight along the shortest arc.
func blendAngle(target, current, weight float64) float64 {
	diff := math.Mod(target-current+3*math.Pi, 2*math.Pi) - math.Pi
	return current + diff*weight
}

func dist(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}
