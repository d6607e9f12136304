package homey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"homeclimate/internal/devices"
)

// Client is a minimal Homey local API client.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs a Homey client.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("homey: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Homey devices expose typed capabilities; the device ID here is
// "<device-uuid>/<capability>", e.g. "abc123/measure_humidity".
type capabilityResponse struct {
	Value any `json:"value"`
	// Homey omits lastUpdated for capabilities that never reported.
	LastUpdated *int64 `json:"lastUpdated"`
}

// ReadSensor returns the current capability value of a device.
func (c *Client) ReadSensor(ctx context.Context, deviceID string) (devices.Reading, error) {
	device, capability, err := splitID(deviceID)
	if err != nil {
		return devices.Reading{}, err
	}
	path := "/api/manager/devices/device/" + device + "/capability/" + capability
	var resp capabilityResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return devices.Reading{}, devices.ErrUnavailable
		}
		return devices.Reading{}, err
	}
	switch value := resp.Value.(type) {
	case float64:
		return devices.Float(value), nil
	case bool:
		return devices.Bool(value), nil
	default:
		return devices.Reading{}, devices.ErrUnavailable
	}
}

// Command sets a capability value on a device. Supported actions are
// "turn_on", "turn_off" and "set_target_temperature".
func (c *Client) Command(ctx context.Context, deviceID, action string, params map[string]any) error {
	device, capability, err := splitID(deviceID)
	if err != nil {
		return err
	}
	var value any
	switch action {
	case "turn_on":
		value = true
	case "turn_off":
		value = false
	case "set_target_temperature":
		target, ok := params["temperature"]
		if !ok {
			return errors.New("homey: missing temperature param")
		}
		value = target
		capability = "target_temperature"
	default:
		return fmt.Errorf("homey: unsupported action %q", action)
	}
	path := "/api/manager/devices/device/" + device + "/capability/" + capability
	return c.doJSON(ctx, http.MethodPut, path, map[string]any{"value": value}, nil)
}

func splitID(deviceID string) (string, string, error) {
	parts := strings.SplitN(deviceID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("homey: device id must be <device>/<capability>")
	}
	return parts[0], parts[1], nil
}

var errNotFound = errors.New("homey: not found")

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
		return fmt.Errorf("homey: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
