package world

import (
	"lanternfall/internal/protocol"
)

// broadcastSnapshots builds and sends one world_state frame per connected
// session. Realm-shared slices (wisps, stars, echoes minus trust) are
// assembled once per realm; the trust-to-viewer fields are the only
// per-viewer projection.
func (w *World) broadcastSnapshots(byRealm map[string][]*Session) {
	for realm, members := range byRealm {
		if len(members) == 0 {
			continue
		}

		var realmWisps []*Wisp
		for _, wisp := range w.wisps {
			if wisp.Realm == realm {
				realmWisps = append(realmWisps, wisp)
			}
		}

		var stars []protocol.StarView
		var echoes []protocol.EchoView
		for _, obj := range w.objects {
			if obj.Realm != realm {
				continue
			}
			switch obj.Kind {
			case ObjectStar:
				stars = append(stars, protocol.StarView{
					ID:         obj.Content,
					LitBy:      obj.OwnerID,
					Engagement: obj.Engagement,
				})
			case ObjectEcho:
				echoes = append(echoes, protocol.EchoView{
					ID:         obj.ID,
					OwnerID:    obj.OwnerID,
					OwnerName:  obj.OwnerName,
					Text:       obj.Content,
					X:          obj.X,
					Y:          obj.Y,
					Engagement: obj.Engagement,
				})
			}
		}

		for _, viewer := range members {
			state := protocol.WorldState{
				Realm:       realm,
				Tick:        w.tickCount,
				You:         sessionView(viewer, viewer),
				Sessions:    make([]protocol.SessionView, 0, len(members)-1),
				Wisps:       make([]protocol.WispView, 0, len(realmWisps)),
				Stars:       stars,
				Echoes:      echoes,
				NotableTies: viewer.Trust.Notable(),
			}
			for _, peer := range members {
				if peer == viewer {
					continue
				}
				state.Sessions = append(state.Sessions, sessionView(peer, viewer))
			}
			for _, wisp := range realmWisps {
				state.Wisps = append(state.Wisps, protocol.WispView{
					ID:            wisp.ID,
					Name:          wisp.Name,
					Personality:   wisp.Personality,
					X:             wisp.X,
					Y:             wisp.Y,
					Excitement:    wisp.Excitement,
					Utterance:     wisp.Utterance,
					Singing:       wisp.Singing,
					Pulsing:       wisp.Pulsing,
					TrustToViewer: wisp.Trust[viewer.ID],
				})
			}
			viewer.send(protocol.NewEnvelope(protocol.TypeWorldState, state))
		}
	}
}

// sessionView projects one session as seen by a viewer. The trust field is
// the viewer's own directed edge toward the subject; a session viewing
// itself reports zero.
func sessionView(subject, viewer *Session) protocol.SessionView {
	view := protocol.SessionView{
		ID:       subject.ID,
		Name:     subject.Name,
		X:        subject.X,
		Y:        subject.Y,
		Hue:      subject.Hue,
		Level:    subject.Level,
		Speaking: subject.Speaking,
	}
	if subject != viewer {
		view.TrustToViewer = viewer.Trust[subject.ID]
	}
	return view
}
