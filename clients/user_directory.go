package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrUnknownUser is returned when the user service has no profile for an id.
var ErrUnknownUser = errors.New("unknown user")

// profile is the subset of the user service's public profile we read.
type profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

const (
	usernameCacheTTL     = 10 * time.Minute
	usernameCacheCleanup = 30 * time.Minute
)

// UserDirectory resolves display names from the user service's public
// profiles and keeps them for a while.
type UserDirectory struct {
	serviceClient
	names *cache.Cache
}

func NewUserDirectory(baseURL, token string, client *http.Client) *UserDirectory {
	return &UserDirectory{
		serviceClient: serviceClient{BaseURL: baseURL, Token: token, Client: client},
		names:         cache.New(usernameCacheTTL, usernameCacheCleanup),
	}
}

func (d *UserDirectory) Username(ctx context.Context, userID string) (string, error) {
	if name, ok := d.names.Get(userID); ok {
		return name.(string), nil
	}

	var p profile
	err := d.getJSON(ctx, "/api/v1/public/profiles/"+url.PathEscape(userID), &p)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return "", err
	}
	if p.Username == "" {
		return "", fmt.Errorf("%w: %s has no username", ErrUnknownUser, userID)
	}

	d.names.Set(userID, p.Username, cache.DefaultExpiration)
	return p.Username, nil
}

// StaticUsernames echoes the user id as the name. Used when no user service
// is configured.
type StaticUsernames struct{}

func (StaticUsernames) Username(_ context.Context, userID string) (string, error) {
	return userID, nil
}
