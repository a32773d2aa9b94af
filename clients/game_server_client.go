package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"game-match-system/models"

	"github.com/google/uuid"
)

// ErrNoRoom is returned when the game server answers without a room id.
var ErrNoRoom = errors.New("game server returned no room id")

// GameServerClient provisions a playable room for a scheduled match.
type GameServerClient struct {
	serviceClient
}

func NewGameServerClient(baseURL, token string, client *http.Client) *GameServerClient {
	return &GameServerClient{serviceClient{BaseURL: baseURL, Token: token, Client: client}}
}

type createRoomRequest struct {
	MatchID      string   `json:"match_id"`
	GameMode     string   `json:"game_mode"`
	PlayerIDs    []string `json:"player_ids"`
	TournamentID *string  `json:"tournament_id,omitempty"`
	GoldenGame   bool     `json:"golden_game"`
}

type createRoomResponse struct {
	RoomID string `json:"room_id"`
}

func (c *GameServerClient) CreateRoom(ctx context.Context, m *models.Match) (string, error) {
	var out createRoomResponse
	err := c.postJSON(ctx, "/api/v1/rooms", createRoomRequest{
		MatchID:      m.ID,
		GameMode:     m.GameMode,
		PlayerIDs:    m.PlayerIDs(),
		TournamentID: m.TournamentID,
		GoldenGame:   m.IsGoldenGame,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("create room for match %s: %w", m.ID, err)
	}
	if out.RoomID == "" {
		return "", fmt.Errorf("create room for match %s: %w", m.ID, ErrNoRoom)
	}
	return out.RoomID, nil
}

// LocalRooms hands out room ids without a game server, for local runs.
type LocalRooms struct{}

func (LocalRooms) CreateRoom(_ context.Context, m *models.Match) (string, error) {
	return "local-" + uuid.NewString(), nil
}
