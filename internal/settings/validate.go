package settings

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ValidationError explains why an edited value was rejected.
type ValidationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Key, e.Reason)
}

type intRange struct{ min, max int64 }

var intKeys = map[string]*intRange{
	KeyChatID:         nil,
	KeyCheckInterval:  {min: 60, max: 24 * 3600},
	KeyViewportWidth:  {min: 100, max: 4096},
	KeyViewportHeight: {min: 100, max: 4096},
	KeyImageQuality:   {min: 1, max: 100},
}

// Validate checks an admin-supplied value before it is stored.
// Keys without a known shape accept any non-empty value.
func Validate(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return &ValidationError{Key: key, Value: value, Reason: "value must not be empty"}
	}
	if bounds, ok := intKeys[key]; ok {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return &ValidationError{Key: key, Value: value, Reason: "must be an integer"}
		}
		if bounds != nil && (n < bounds.min || n > bounds.max) {
			return &ValidationError{
				Key:    key,
				Value:  value,
				Reason: fmt.Sprintf("must be between %d and %d", bounds.min, bounds.max),
			}
		}
		if key == KeyCheckInterval && !alignedInterval(n) {
			return &ValidationError{
				Key:    key,
				Value:  value,
				Reason: "must divide an hour evenly, or a day when longer than an hour",
			}
		}
		return nil
	}
	switch key {
	case KeySourceTimezone, KeyTargetTimezone:
		if _, err := time.LoadLocation(value); err != nil {
			return &ValidationError{Key: key, Value: value, Reason: "unknown timezone"}
		}
	case KeyCheckURL, KeyRenderServer:
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Key: key, Value: value, Reason: "must be an absolute http(s) URL"}
		}
	}
	return nil
}

// alignedInterval reports whether slots of n seconds line up with the top of
// the hour (or UTC midnight past one hour) every period.
func alignedInterval(n int64) bool {
	if n <= 3600 {
		return 3600%n == 0
	}
	return 86400%n == 0
}
