package main

// Inbound messages arrive as {"type": ...} plus per-event fields. The
// envelope is decoded first to pick the event, then the payload is decoded
// into the matching struct so malformed fields never reach the core.
type envelope struct {
	Type string `json:"type"`
}

type quickJoinMessage struct {
	Token string `json:"token"`
	Name  string `json:"username"`
}

type createSessionMessage struct {
	Token string `json:"token"`
	Name  string `json:"username"`
}

type joinSessionMessage struct {
	Token     string `json:"token"`
	Name      string `json:"username"`
	SessionID string `json:"session_id"`
}

type toggleVisibilityMessage struct {
	SessionID string `json:"session_id"`
}

type setReadyMessage struct {
	Token string `json:"token"`
}

type submitChoiceMessage struct {
	Token  string `json:"token"`
	Round  int    `json:"round"`
	GifURL string `json:"choice"`
}

type submitLikeMessage struct {
	Token    string `json:"token"`
	Round    int    `json:"round"`
	GifURL   string `json:"choice"`
	AuthorID string `json:"author_uuid"`
}

type nextPageMessage struct {
	Token      string `json:"token"`
	ActualPage int    `json:"actual_page"`
}

type podiumMessage struct {
	Token string `json:"token"`
}

type pageLoadedMessage struct {
	PlayerID string `json:"uuid"`
}

type pageReloadMessage struct {
	Token string `json:"token"`
}

type quitMessage struct {
	Token string `json:"token"`
}

// Room state as broadcast to clients.
type PlayerState struct {
	ID    string `json:"uuid"`
	Name  string `json:"username"`
	Ready bool   `json:"ready"`
}

type ChoiceState struct {
	PlayerID string `json:"uuid"`
	Round    int    `json:"round"`
	GifURL   string `json:"choice"`
}

type SessionState struct {
	ID      string        `json:"id"`
	Private bool          `json:"private"`
	Phase   Phase         `json:"phase"`
	OwnerID string        `json:"owner_uuid"`
	Players []PlayerState `json:"players"`
	Round   int           `json:"round"`
	Choices []ChoiceState `json:"choices"`
}

// Outbound messages.
type sessionJoinedMessage struct {
	Type    string       `json:"type"` // "session_joined"
	Joiner  PlayerState  `json:"joiner"`
	Session SessionState `json:"session"`
}

type sessionUpdatedMessage struct {
	Type    string       `json:"type"` // "session_updated"
	Session SessionState `json:"session"`
}

type playerReadyUpdatedMessage struct {
	Type            string `json:"type"` // "player_ready_updated"
	PlayerID        string `json:"player_uuid"`
	LaunchCountdown bool   `json:"launch_countdown"`
}

type roundStartedMessage struct {
	Type   string `json:"type"` // "round_started"
	Round  int    `json:"round"`
	Prompt string `json:"prompt"`
}

type lastRoundCompleteMessage struct {
	Type string `json:"type"` // "last_round_complete"
}

type podiumReadyMessage struct {
	Type    string   `json:"type"` // "podium_ready"
	Results []Result `json:"results"`
}

type tokenIssuedMessage struct {
	Type  string `json:"type"` // "token_issued"
	Name  string `json:"username"`
	Token string `json:"token"`
}

type tokenClearedMessage struct {
	Type string `json:"type"` // "token_cleared"
}

type pageAdvancedMessage struct {
	Type string `json:"type"` // "page_advanced"
	Page int    `json:"page"`
}

type roomFullMessage struct {
	Type      string `json:"type"` // "room_full"
	SessionID string `json:"session_id"`
}
