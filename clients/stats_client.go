package clients

import (
	"context"
	"net/http"
)

// StatsReport is one player's side of a finished match.
type StatsReport struct {
	PlayerID string `json:"player_id"`
	IsWinner bool   `json:"is_winner"`
	MatchID  string `json:"match_id"`
	GameMode string `json:"game_mode,omitempty"`
}

// StatsClient reports win/loss records to the user service.
type StatsClient struct {
	serviceClient
}

func NewStatsClient(baseURL, token string, client *http.Client) *StatsClient {
	return &StatsClient{serviceClient{BaseURL: baseURL, Token: token, Client: client}}
}

func (c *StatsClient) ReportMatchResult(ctx context.Context, r StatsReport) Delivery {
	return delivered(TargetStats, c.postJSON(ctx, "/api/v1/stats/match-result", r, nil))
}

// NopStats drops every report.
type NopStats struct{}

func (NopStats) ReportMatchResult(context.Context, StatsReport) Delivery {
	return Delivery{Target: TargetStats}
}
