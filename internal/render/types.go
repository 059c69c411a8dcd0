// Package render talks to the screenshot rendering service over HTTP.
package render

import (
	"errors"
	"fmt"
	"time"
)

// Viewport describes the browser window used for a capture.
type Viewport struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	Quality int `json:"quality"`
}

// Request is the JSON body accepted by /screenshot and /combined.
type Request struct {
	URL      string   `json:"url"`
	Viewport Viewport `json:"viewport"`
}

// Page is a decoded /combined response.
type Page struct {
	Content    string
	Screenshot []byte
}

// ServiceStatus mirrors the /status document of the render service.
type ServiceStatus struct {
	Status        string        `json:"status"`
	Uptime        time.Duration `json:"uptime_ns"`
	PagesRendered int64         `json:"pages_rendered"`
	BrowserPages  int           `json:"browser_pages"`
	BrowserAge    time.Duration `json:"browser_age_ns"`
	Restarts      int64         `json:"restarts"`
	InFlight      int64         `json:"in_flight"`
	MaxInFlight   int           `json:"max_in_flight"`
}

// ErrIncompleteResponse reports a 200 reply missing content or screenshot.
var ErrIncompleteResponse = errors.New("render: response missing content or screenshot")

// StatusError is returned for non-200 replies.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("render: %s returned HTTP %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("render: %s returned HTTP %d: %s", e.Endpoint, e.Code, e.Body)
}

// Retryable reports whether the reply is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == 429
}
