package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tvinspection/tvinspect/pkg/constants"
)

// Login authenticates with username and password.
func (c *Client) Login(ctx context.Context, username, password string) (AuthResponse, error) {
	var result AuthResponse
	err := c.call(ctx, request{
		method:    http.MethodPost,
		path:      constants.PathLogin,
		body:      map[string]string{"username": username, "password": password},
		anonymous: true,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return result, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	var result AuthResponse
	err := c.call(ctx, request{
		method:    http.MethodPost,
		path:      constants.PathRegister,
		body:      req,
		anonymous: true,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return result, nil
}

// ObtainToken requests a JWT pair directly from the token endpoint.
func (c *Client) ObtainToken(ctx context.Context, username, password string) (AuthResponse, error) {
	var result AuthResponse
	err := c.call(ctx, request{
		method:    http.MethodPost,
		path:      constants.PathToken,
		body:      map[string]string{"username": username, "password": password},
		anonymous: true,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	return result, nil
}

// RefreshToken exchanges a refresh token for a new access token without
// touching the token store.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (string, error) {
	var result struct {
		Access string `json:"access"`
	}
	err := c.call(ctx, request{
		method:    http.MethodPost,
		path:      constants.PathTokenRefresh,
		body:      map[string]string{"refresh": refresh},
		timeout:   c.refreshTimeout,
		anonymous: true,
	}, &result)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	if result.Access == "" {
		return "", constants.ErrNoToken
	}
	return result.Access, nil
}

// Profile returns the authenticated user.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var result User
	if err := c.call(ctx, request{method: http.MethodGet, path: constants.PathProfile}, &result); err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	return &result, nil
}

// UpdateProfile changes profile fields and returns the updated user.
func (c *Client) UpdateProfile(ctx context.Context, fields map[string]any) (*User, error) {
	var result User
	err := c.call(ctx, request{method: http.MethodPut, path: constants.PathProfileUpdate, body: fields}, &result)
	if err != nil {
		return nil, fmt.Errorf("profile update failed: %w", err)
	}
	return &result, nil
}
