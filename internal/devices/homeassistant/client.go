package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"homeclimate/internal/devices"
)

// Client is a minimal Home Assistant REST client.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs a Home Assistant client.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("homeassistant: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type stateResponse struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// ReadSensor returns the current state of an entity.
func (c *Client) ReadSensor(ctx context.Context, deviceID string) (devices.Reading, error) {
	if deviceID == "" {
		return devices.Reading{}, errors.New("homeassistant: empty entity id")
	}
	var resp stateResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/states/"+deviceID, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return devices.Reading{}, devices.ErrUnavailable
		}
		return devices.Reading{}, err
	}
	return normalizeState(resp.State)
}

// Command calls a Home Assistant service for the entity. The action
// maps to a service in the entity's domain, e.g. "turn_on".
func (c *Client) Command(ctx context.Context, deviceID, action string, params map[string]any) error {
	if deviceID == "" || action == "" {
		return errors.New("homeassistant: invalid command args")
	}
	domain := entityDomain(deviceID)
	body := map[string]any{"entity_id": deviceID}
	for key, value := range params {
		body[key] = value
	}
	return c.doJSON(ctx, http.MethodPost, "/api/services/"+domain+"/"+action, body, nil)
}

// normalizeState converts HA state strings into a Reading. Entities
// report "unavailable"/"unknown" while offline.
func normalizeState(state string) (devices.Reading, error) {
	switch state {
	case "", "unavailable", "unknown":
		return devices.Reading{}, devices.ErrUnavailable
	case "on", "open", "detected", "heat":
		return devices.Bool(true), nil
	case "off", "closed", "clear", "idle":
		return devices.Bool(false), nil
	}
	value, err := strconv.ParseFloat(state, 64)
	if err != nil {
		return devices.Reading{}, devices.ErrUnavailable
	}
	return devices.Float(value), nil
}

func entityDomain(entityID string) string {
	if idx := strings.Index(entityID, "."); idx > 0 {
		return entityID[:idx]
	}
	return "homeassistant"
}

var errNotFound = errors.New("homeassistant: not found")

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("homeassistant: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
