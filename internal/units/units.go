// Package units provides shared constants and conversions for surface
// velocity and displacement. Velocities are carried through the system in
// centimeters per minute, the unit the sensor reports.
package units

import "time"

// CmMinToCmSec converts a velocity from cm/min to cm/s.
func CmMinToCmSec(v float64) float64 {
	return v / 60.0
}

// Displacement returns the distance in centimeters covered at a constant
// velocity (cm/min) over the elapsed duration.
func Displacement(velocityCmMin float64, elapsed time.Duration) float64 {
	return velocityCmMin * elapsed.Minutes()
}

// TravelTime returns how long the surface takes to cover the given distance
// (cm) at a constant velocity (cm/min). A non-positive velocity yields zero;
// callers must treat that as "indeterminate", not "instant".
func TravelTime(distanceCm, velocityCmMin float64) time.Duration {
	if velocityCmMin <= 0 {
		return 0
	}
	minutes := distanceCm / velocityCmMin
	return time.Duration(minutes * float64(time.Minute))
}
