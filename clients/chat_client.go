package clients

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	TargetChat    = "chat"
	TargetStats   = "stats"
	TargetRooms   = "game-server"
	TargetArchive = "archive"
)

// MatchAckEvent asks both players to confirm a proposed match.
type MatchAckEvent struct {
	Type          string    `json:"type"`
	MatchID       string    `json:"match_id"`
	PlayerIDs     []string  `json:"player_ids"`
	GameMode      string    `json:"game_mode"`
	GameModeTitle string    `json:"game_mode_title"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// GameSessionEvent opens a chat channel for a provisioned room.
type GameSessionEvent struct {
	Type          string   `json:"type"`
	PlayerIDs     []string `json:"player_ids"`
	GameSessionID string   `json:"game_session_id"`
}

func newMatchAckEvent(matchID string, playerIDs []string, gameMode string, expiresAt time.Time) MatchAckEvent {
	return MatchAckEvent{
		Type:          "match_ack",
		MatchID:       matchID,
		PlayerIDs:     playerIDs,
		GameMode:      gameMode,
		GameModeTitle: ModeTitle(gameMode),
		ExpiresAt:     expiresAt.UTC(),
	}
}

func newGameSessionEvent(playerIDs []string, gameSessionID string) GameSessionEvent {
	return GameSessionEvent{
		Type:          "game_session_channel",
		PlayerIDs:     playerIDs,
		GameSessionID: gameSessionID,
	}
}

// ModeTitle renders a game mode id for people, e.g. "ranked_duel" -> "Ranked Duel".
func ModeTitle(mode string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(mode, "_", " "))
}

// ChatClient delivers notifications to the chat service over HTTP.
type ChatClient struct {
	serviceClient
}

func NewChatClient(baseURL, token string, client *http.Client) *ChatClient {
	return &ChatClient{serviceClient{BaseURL: baseURL, Token: token, Client: client}}
}

func (c *ChatClient) SendMatchAck(ctx context.Context, matchID string, playerIDs []string, gameMode string, expiresAt time.Time) Delivery {
	ev := newMatchAckEvent(matchID, playerIDs, gameMode, expiresAt)
	return delivered(TargetChat, c.postJSON(ctx, "/api/v1/notifications/match-ack", ev, nil))
}

func (c *ChatClient) CreateGameSessionChannel(ctx context.Context, playerIDs []string, gameSessionID string) Delivery {
	ev := newGameSessionEvent(playerIDs, gameSessionID)
	return delivered(TargetChat, c.postJSON(ctx, "/api/v1/channels/game-session", ev, nil))
}

// NopNotifier accepts every notification and sends nothing.
type NopNotifier struct{}

func (NopNotifier) SendMatchAck(context.Context, string, []string, string, time.Time) Delivery {
	return Delivery{Target: TargetChat}
}

func (NopNotifier) CreateGameSessionChannel(context.Context, []string, string) Delivery {
	return Delivery{Target: TargetChat}
}
