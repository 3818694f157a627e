// Package dedupe provides a time-bounded cache for dropping replayed
// platform events.
package dedupe
