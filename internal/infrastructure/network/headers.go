package network

import (
	"net/http"

	"github.com/google/uuid"
)

// DeviceInfo identifies the client to the backend.
type DeviceInfo struct {
	DeviceID   string
	Platform   string
	AppVersion string
	UserAgent  string
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.tokens.value(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Device-ID", c.device.DeviceID)
	req.Header.Set("X-Platform", c.device.Platform)
	req.Header.Set("X-App-Version", c.device.AppVersion)
	if c.device.UserAgent != "" {
		req.Header.Set("User-Agent", c.device.UserAgent)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
}
