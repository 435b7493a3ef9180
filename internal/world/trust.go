package world

// Trust graph: directed, decaying, bounded edges. Sessions hold edges to
// other sessions and to wisps; wisps hold edges to sessions only. Nothing
// here is automatically mutual - each side's edge moves independently.

const (
	// TrustMax bounds every edge; TrustMin removal happens at zero.
	TrustMax = 100.0

	// NotableThreshold is the trust value at which a connection becomes
	// notable. Crossing it upward fires exactly once per ordered pair per
	// crossing.
	NotableThreshold = 25.0

	// GravityThreshold is the minimum edge strength at which a wisp is
	// pulled toward a session during the tick.
	GravityThreshold = 20.0
)

// TrustMap holds one owner's directed edges, keyed by target id.
type TrustMap map[string]float64

// Strengthen raises (or with a negative amount lowers) the edge toward
// targetID, clamped to [0,100], pruning edges that fall to zero. It reports
// whether the notable threshold was just crossed upward; the caller owns
// emitting the notable-connection event and its reward.
func (t TrustMap) Strengthen(targetID string, amount float64) bool {
	before := t[targetID]
	after := before + amount
	if after > TrustMax {
		after = TrustMax
	}
	if after <= 0 {
		delete(t, targetID)
		return false
	}
	t[targetID] = after
	return before < NotableThreshold && after >= NotableThreshold
}

// Decay subtracts rate from every edge, pruning edges that reach zero.
func (t TrustMap) Decay(rate float64) {
	for id, v := range t {
		v -= rate
		if v <= 0 {
			delete(t, id)
		} else {
			t[id] = v
		}
	}
}

// Notable counts edges at or above the notable threshold.
func (t TrustMap) Notable() int {
	n := 0
	for _, v := range t {
		if v >= NotableThreshold {
			n++
		}
	}
	return n
}

// proximityScale is the distance falloff applied to proximity-weighted
// strengthening: full amount at zero distance, half at the radius edge.
func proximityScale(distance, radius float64) float64 {
	if radius <= 0 || distance > radius {
		return 0
	}
	return 1 - 0.5*(distance/radius)
}

// decayAllTrust runs the per-tick decay over every owner's map: all
// sessions, then all wisps. Must run before wisp gravity reads edges so
// gravity reflects this tick's values. Called under the world lock.
func (w *World) decayAllTrust() {
	rate := w.cfg.TrustDecayPerTick
	for _, s := range w.sessions {
		s.Trust.Decay(rate)
	}
	for _, wisp := range w.wisps {
		wisp.Trust.Decay(rate)
	}
}

// strengthenNearby applies proximity-weighted trust from owner toward every
// session and wisp within radius in the same realm (excluding owner), and
// symmetrically from each nearby session back toward owner. Wisp edges
// toward the owner are the Agent Engine's business (React), not ours.
// Called under the world lock.
func (w *World) strengthenNearby(owner *Session, base, radius float64) {
	for _, other := range w.sessions {
		if other == owner || other.Realm != owner.Realm {
			continue
		}
		scale := proximityScale(dist(owner.X, owner.Y, other.X, other.Y), radius)
		if scale <= 0 {
			continue
		}
		if owner.Trust.Strengthen(other.ID, base*scale) {
			w.notableConnection(owner, other.ID, other.Name)
		}
		if other.Trust.Strengthen(owner.ID, base*scale) {
			w.notableConnection(other, owner.ID, owner.Name)
		}
	}
	for _, wisp := range w.wisps {
		if wisp.Realm != owner.Realm {
			continue
		}
		scale := proximityScale(dist(owner.X, owner.Y, wisp.X, wisp.Y), radius)
		if scale <= 0 {
			continue
		}
		if owner.Trust.Strengthen(wisp.ID, base*scale) {
			w.notableConnection(owner, wisp.ID, wisp.Name)
		}
	}
}
