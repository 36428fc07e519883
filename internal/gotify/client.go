package gotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gotify-desk/deskd/internal/message"
	"github.com/gotify-desk/deskd/pkg/utils"
	"go.uber.org/zap"
)

const (
	// AuthHeader carries the client token on every request.
	AuthHeader = "X-Gotify-Key"

	// MaxPageLimit is the largest page size the message endpoint accepts.
	MaxPageLimit = 200

	requestTimeout = 15 * time.Second
)

// Client talks to the server's REST endpoints: paginated message history,
// the application list and message deletion.
type Client struct {
	logger  *zap.Logger
	http    *http.Client
	baseURL string
	token   string
}

// NewClient creates a REST client for the given server.
func NewClient(logger *zap.Logger, baseURL, token string) *Client {
	return &Client{
		logger:  logger.Named("gotify.client"),
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: baseURL,
		token:   token,
	}
}

// FetchMessagesPage requests one page of message history. since is an
// exclusive "older-than" id cursor; zero fetches the newest page.
func (c *Client) FetchMessagesPage(ctx context.Context, limit int, since int64) ([]message.WireMessage, error) {
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	endpoint := fmt.Sprintf("%s/message?limit=%d", c.baseURL, limit)
	if since > 0 {
		endpoint += "&since=" + strconv.FormatInt(since, 10)
	}

	var list message.WireMessageList
	if err := c.getJSON(ctx, endpoint, &list); err != nil {
		return nil, fmt.Errorf("failed to fetch recent messages: %w", err)
	}
	return list.Messages, nil
}

// FetchApplications requests the full producer application list.
func (c *Client) FetchApplications(ctx context.Context) ([]message.WireApplication, error) {
	var apps []message.WireApplication
	if err := c.getJSON(ctx, c.baseURL+"/application", &apps); err != nil {
		return nil, fmt.Errorf("failed to fetch applications: %w", err)
	}
	return apps, nil
}

// DeleteMessage removes a message server-side.
func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	endpoint := fmt.Sprintf("%s/message/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set(AuthHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete message request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete message failed with HTTP %d", resp.StatusCode)
	}
	return nil
}

// CheckConnection probes the server with the configured credentials.
func (c *Client) CheckConnection(ctx context.Context) error {
	var apps []message.WireApplication
	if err := c.getJSON(ctx, c.baseURL+"/application", &apps); err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}
	return nil
}

// ResolveImageURL joins an application icon path onto the server base URL.
func (c *Client) ResolveImageURL(imagePath string) (string, error) {
	if imagePath == "" {
		return "", nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	ref, err := url.Parse(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve application image path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set(AuthHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			body = []byte("<unable to read response body>")
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
