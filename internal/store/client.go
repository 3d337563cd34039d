package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"realm-chat-core/internal/model"
)

// Client is the contract of the external REST store that persists scrolls.
// The persistence strategy behind it is not this repository's concern.
type Client interface {
	// History returns the persisted scrolls for a hall, ordered by creation time.
	History(ctx context.Context, hallID uuid.UUID) ([]model.Scroll, error)

	// Persist writes a new scroll and returns the server-confirmed instance
	// (server-assigned id and timestamp, client CID echoed back).
	Persist(ctx context.Context, scroll model.Scroll) (model.Scroll, error)
}

type RESTClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

var _ Client = &RESTClient{}

func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *RESTClient) History(ctx context.Context, hallID uuid.UUID) ([]model.Scroll, error) {
	url := fmt.Sprintf("%s/api/scrolls/hall/%s", c.BaseURL, hallID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var scrolls []model.Scroll
	if err := json.Unmarshal(bodyBytes, &scrolls); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return scrolls, nil
}

func (c *RESTClient) Persist(ctx context.Context, scroll model.Scroll) (model.Scroll, error) {
	payloadBytes, err := json.Marshal(scroll)
	if err != nil {
		return model.Scroll{}, fmt.Errorf("marshal scroll: %w", err)
	}

	url := c.BaseURL + "/api/scrolls"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return model.Scroll{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return model.Scroll{}, fmt.Errorf("persist scroll: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Scroll{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return model.Scroll{}, fmt.Errorf("store error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var confirmed model.Scroll
	if err := json.Unmarshal(bodyBytes, &confirmed); err != nil {
		return model.Scroll{}, fmt.Errorf("unmarshal confirmed scroll: %w", err)
	}
	return confirmed, nil
}

func (c *RESTClient) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}
