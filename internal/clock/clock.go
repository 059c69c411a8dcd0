// Package clock abstracts time so the scheduling loop can be tested.
package clock

import "time"

// Clock reports the current time and waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}
