// Package system supplies the wall clock the crawler runs against.
package system

import "time"

// Clock satisfies crawler.Clock with the host's wall clock. Times are
// normalized to UTC so the date arithmetic that partitions work into
// per-day tasks does not shift with the host timezone.
type Clock struct{}

// Now reports the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
