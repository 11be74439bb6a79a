package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"spotchat/model"
)

// TokenProvider supplies the bearer credential presented at connect time. It
// is consulted again on every reconnect attempt, since tokens may be
// short-lived. An empty token attempts an anonymous connection.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a function to the TokenProvider interface.
type TokenProviderFunc func(ctx context.Context) (string, error)

func (f TokenProviderFunc) GetToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken returns a provider that always yields the same token.
func StaticToken(token string) TokenProvider {
	return TokenProviderFunc(func(context.Context) (string, error) {
		return token, nil
	})
}

// VerificationProvider supplies a human-verification token for the join
// handshake on deployments that require one.
type VerificationProvider interface {
	GetVerificationToken(ctx context.Context, action string) (string, error)
}

// VerificationProviderFunc adapts a function to the VerificationProvider interface.
type VerificationProviderFunc func(ctx context.Context, action string) (string, error)

func (f VerificationProviderFunc) GetVerificationToken(ctx context.Context, action string) (string, error) {
	return f(ctx, action)
}

// RoomDirectory is the room metadata service. It is consulted once on room
// entry, outside the realtime protocol, to learn the room's tag catalog.
type RoomDirectory interface {
	GetRoom(ctx context.Context, roomID string) (model.Room, error)
}

// HTTPRoomDirectory fetches room metadata from the server's /rooms endpoint.
type HTTPRoomDirectory struct {
	BaseURL string
	Client  *http.Client
}

func (d *HTTPRoomDirectory) GetRoom(ctx context.Context, roomID string) (model.Room, error) {
	httpc := d.Client
	if httpc == nil {
		httpc = http.DefaultClient
	}

	endpoint := strings.TrimRight(d.BaseURL, "/") + "/rooms/" + url.PathEscape(roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Room{}, err
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return model.Room{}, fmt.Errorf("fetch room %s: %w", roomID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Room{}, fmt.Errorf("fetch room %s: unexpected status %s", roomID, resp.Status)
	}

	var room model.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return model.Room{}, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return room, nil
}
