package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrNoToken is returned when a login response carries no token.
var ErrNoToken = errors.New("api: login response has no token")

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token. The password and the
// returned token are never logged.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	c.logger.Info("logging in", slog.String("email", email))

	var out loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", loginRequest{Email: email, Password: password}, &out); err != nil {
		return "", fmt.Errorf("api: login: %w", err)
	}

	if out.Token == "" {
		return "", ErrNoToken
	}

	return out.Token, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	c.logger.Info("registering account",
		slog.String("username", username),
		slog.String("email", email),
	)

	req := registerRequest{Username: username, Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/register", req, nil); err != nil {
		return fmt.Errorf("api: register: %w", err)
	}

	return nil
}
