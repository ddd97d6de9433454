package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

type createShareRequest struct {
	FileID      string `json:"file_id"`
	ExpiryHours int    `json:"expiry_hours"`
	Password    string `json:"password,omitempty"`
}

type listSharesResponse struct {
	Links []ShareLink `json:"links"`
}

type validateShareRequest struct {
	Password string `json:"password"`
}

// CreateShare creates a share link for a file. An empty password creates
// an open link.
func (c *Client) CreateShare(ctx context.Context, fileID string, expiryHours int, password string) error {
	c.logger.Info("creating share link",
		slog.String("file_id", fileID),
		slog.Int("expiry_hours", expiryHours),
		slog.Bool("password", password != ""),
	)

	req := createShareRequest{FileID: fileID, ExpiryHours: expiryHours, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/shares", req, nil); err != nil {
		return fmt.Errorf("api: creating share link: %w", err)
	}

	return nil
}

// ListShares returns the share links configured for a file.
func (c *Client) ListShares(ctx context.Context, fileID string) ([]ShareLink, error) {
	var out listSharesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/shares/get/"+url.PathEscape(fileID), nil, &out); err != nil {
		return nil, fmt.Errorf("api: listing share links: %w", err)
	}

	return out.Links, nil
}

// DeleteShare removes a share link by its link ID.
func (c *Client) DeleteShare(ctx context.Context, linkID string) error {
	c.logger.Info("deleting share link", slog.String("link_id", linkID))

	if err := c.doJSON(ctx, http.MethodDelete, "/api/shares/"+url.PathEscape(linkID), nil, nil); err != nil {
		return fmt.Errorf("api: deleting share link: %w", err)
	}

	return nil
}

// FetchShare requests a share link's content in raw mode: the response may
// be file bytes, a JSON redirect, or a JSON error/challenge, and non-2xx
// statuses are returned rather than treated as errors.
func (c *Client) FetchShare(ctx context.Context, token string) (*RawResponse, error) {
	return c.DoRaw(ctx, http.MethodGet, "/api/shares/"+url.PathEscape(token), "", nil)
}

// ValidateShare submits a share password in raw mode. Response shapes are
// those of FetchShare.
func (c *Client) ValidateShare(ctx context.Context, token, password string) (*RawResponse, error) {
	data, err := json.Marshal(validateShareRequest{Password: password})
	if err != nil {
		return nil, fmt.Errorf("api: encoding share password: %w", err)
	}

	return c.DoRaw(ctx, http.MethodPost, "/api/shares/"+url.PathEscape(token)+"/validate",
		"application/json", bytes.NewReader(data))
}
