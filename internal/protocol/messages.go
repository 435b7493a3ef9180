// Package protocol defines the wire format spoken over the persistent
// websocket connection. Every frame, inbound or outbound, is an Envelope:
// a type tag, a JSON payload, and a millisecond timestamp.
package protocol

import (
	"encoding/json"
	"time"
)

// Inbound message types (client -> server).
const (
	TypePlayerUpdate     = "player_update"
	TypeWhisper          = "whisper"
	TypeSing             = "sing"
	TypePulse            = "pulse"
	TypeEmote            = "emote"
	TypeEcho             = "echo"
	TypeEchoIgnite       = "echo_ignite"
	TypeStarLit          = "star_lit"
	TypeAddFriend        = "add_friend"
	TypeRemoveFriend     = "remove_friend"
	TypeTeleportToFriend = "teleport_to_friend"
	TypeVoiceSignal      = "voice_signal"
	TypeSpeaking         = "speaking"
	TypePing             = "ping"
)

// Outbound message types (server -> client).
const (
	TypeWorldState      = "world_state"
	TypePlayerJoined    = "player_joined"
	TypePlayerLeave     = "player_leave"
	TypeXPGain          = "xp_gain"
	TypeCooldown        = "cooldown"
	TypeConnectionMade  = "connection_made"
	TypeError           = "error"
	TypeTeleportSuccess = "teleport_success"
	TypePong            = "pong"
	TypeFriendAdded     = "friend_added"
	TypeFriendRemoved   = "friend_removed"
)

// Envelope is the frame shared by both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Decode parses a raw frame into an Envelope. Malformed frames are the
// caller's problem to drop; the connection stays up.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}

// NewEnvelope wraps an outbound payload with the current timestamp.
// Payloads that fail to marshal produce an empty Data field rather than an
// error; outbound frames are best-effort.
func NewEnvelope(msgType string, payload interface{}) Envelope {
	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			env.Data = data
		}
	}
	return env
}

// Inbound payloads.

// PlayerUpdate carries position/name/hue changes and realm hops.
type PlayerUpdate struct {
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Name  string   `json:"name,omitempty"`
	Hue   *float64 `json:"hue,omitempty"`
	Realm string   `json:"realm,omitempty"`
}

// Whisper is a direct message to one session.
type Whisper struct {
	TargetID string `json:"targetId"`
	Text     string `json:"text"`
}

// Sing announces a song burst at the singer's position.
type Sing struct {
	Melody string `json:"melody,omitempty"`
}

// Pulse announces a light pulse at the sender's position.
type Pulse struct {
	Intensity float64 `json:"intensity,omitempty"`
}

// Emote is a short visible gesture.
type Emote struct {
	Gesture string `json:"gesture"`
}

// Echo plants a message at a position in the sender's realm.
type Echo struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// EchoIgnite bumps the engagement counter on an existing echo.
type EchoIgnite struct {
	EchoID string `json:"echoId"`
}

// StarLit lights a batch of star markers.
type StarLit struct {
	StarIDs []string `json:"starIds"`
}

// FriendRequest adds or removes a friendship with the named session.
type FriendRequest struct {
	TargetID string `json:"targetId"`
}

// TeleportRequest relocates the sender next to a mutual friend.
type TeleportRequest struct {
	TargetID string `json:"targetId"`
}

// VoiceSignal is an opaque relay payload; the server forwards Signal
// untouched to the named target in the same realm.
type VoiceSignal struct {
	TargetID string          `json:"targetId"`
	Signal   json.RawMessage `json:"signal"`
}

// Speaking flags the sender as broadcasting audio.
type Speaking struct {
	Active bool `json:"active"`
}

// Outbound payloads.

// SessionView is one peer as seen by a specific viewer.
type SessionView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Hue           float64 `json:"hue"`
	Level         int     `json:"level"`
	Speaking      bool    `json:"speaking"`
	TrustToViewer float64 `json:"trustToViewer"`
}

// WispView is one autonomous wisp as seen by a specific viewer.
type WispView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Personality   string  `json:"personality"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Excitement    float64 `json:"excitement"`
	Utterance     string  `json:"utterance,omitempty"`
	Singing       float64 `json:"singing"`
	Pulsing       float64 `json:"pulsing"`
	TrustToViewer float64 `json:"trustToViewer"`
}

// StarView is a lit marker in the viewer's realm.
type StarView struct {
	ID         string `json:"id"`
	LitBy      string `json:"litBy"`
	Engagement int64  `json:"engagement"`
}

// EchoView is a planted message in the viewer's realm.
type EchoView struct {
	ID         string  `json:"id"`
	OwnerID    string  `json:"ownerId"`
	OwnerName  string  `json:"ownerName"`
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Engagement int64   `json:"engagement"`
}

// WorldState is the per-viewer snapshot sent every tick.
type WorldState struct {
	Realm       string        `json:"realm"`
	Tick        uint64        `json:"tick"`
	You         SessionView   `json:"you"`
	Sessions    []SessionView `json:"sessions"`
	Wisps       []WispView    `json:"wisps"`
	Stars       []StarView    `json:"stars"`
	Echoes      []EchoView    `json:"echoes"`
	NotableTies int           `json:"notableTies"`
}

// PlayerJoined announces a new session to its realm.
type PlayerJoined struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Realm string `json:"realm"`
}

// PlayerLeave announces a departed session to its realm.
type PlayerLeave struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Realm string `json:"realm"`
}

// XPGain reports an experience reward and any resulting level change.
type XPGain struct {
	Amount    int  `json:"amount"`
	Total     int  `json:"total"`
	Level     int  `json:"level"`
	LeveledUp bool `json:"leveledUp"`
}

// Cooldown rejects an action submitted before its minimum interval elapsed.
type Cooldown struct {
	Action      string `json:"action"`
	RemainingMs int64  `json:"remainingMs"`
}

// ConnectionMade fires once when a trust edge crosses the notable threshold.
type ConnectionMade struct {
	TargetID   string  `json:"targetId"`
	TargetName string  `json:"targetName"`
	Trust      float64 `json:"trust"`
}

// Error is a typed policy or validation rejection.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in Error.Code.
const (
	ErrCapacity   = "capacity"
	ErrNotFriends = "not_friends"
	ErrNotFound   = "not_found"
	ErrBadRequest = "bad_request"
)

// TeleportSuccess reports the requester's new position.
type TeleportSuccess struct {
	TargetID string  `json:"targetId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// FriendNotice informs both parties of a friendship change.
type FriendNotice struct {
	FriendID   string `json:"friendId"`
	FriendName string `json:"friendName"`
}

// ActionBroadcast fans an ambient action (sing, pulse, emote, echo plant,
// speaking) out to every session in the actor's realm, the actor included:
// clients render the server-confirmed result, not a local prediction.
type ActionBroadcast struct {
	Action  string  `json:"action"`
	ActorID string  `json:"actorId"`
	Actor   string  `json:"actor"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Detail  string  `json:"detail,omitempty"`
	EchoID  string  `json:"echoId,omitempty"`
}

// WhisperDelivery carries a whisper to its single recipient.
type WhisperDelivery struct {
	FromID   string `json:"fromId"`
	FromName string `json:"fromName"`
	Text     string `json:"text"`
}

// VoiceRelay forwards an opaque voice payload to its target.
type VoiceRelay struct {
	FromID string          `json:"fromId"`
	Signal json.RawMessage `json:"signal"`
}
