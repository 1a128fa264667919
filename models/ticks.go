package models

import "time"

// TicksPerSecond is the host's playback time unit: one tick is 100ns.
const TicksPerSecond = int64(10_000_000)

// TicksFromSeconds converts a duration in seconds to ticks.
func TicksFromSeconds(seconds float64) int64 {
	return int64(seconds * float64(TicksPerSecond))
}

// TicksFromMinutes converts whole minutes to ticks.
func TicksFromMinutes(minutes int) int64 {
	return int64(minutes) * 60 * TicksPerSecond
}

// TicksToDuration converts ticks to a time.Duration.
func TicksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks * 100)
}
