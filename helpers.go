package lockfleet

import "time"

// Now returns the current time (for consistency across the codebase, and so
// tests can fake clocks without monkey-patching time.Now directly)
func Now() time.Time {
	return time.Now()
}
