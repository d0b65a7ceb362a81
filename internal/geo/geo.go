// Package geo holds the position fix type shared by the location gate and
// the session validator, plus the distance math used for display hints.
// The authoritative distance policy lives on the backend; the client only
// uses these values to explain decisions to the operator.
package geo

import (
	"fmt"
	"math"
	"time"
)

const (
	// earthRadiusM is the mean Earth radius used by the haversine formula.
	earthRadiusM = 6371000.0

	// DefaultMaxFixAge is how old a position read may be before the gate
	// refuses to reuse it. Fresh reads only: a cached fix defeats the
	// point of gating capture on presence.
	DefaultMaxFixAge = 30 * time.Second

	// WeakAccuracyMeters marks the point where a fix is worth a warning.
	// Large accuracy radii indicate a weak or potentially spoofed fix.
	WeakAccuracyMeters = 100.0
)

// Position is one high-accuracy GPS fix.
type Position struct {
	Lat       float64
	Long      float64
	Accuracy  float64 // horizontal accuracy radius in meters
	Timestamp time.Time
}

// Validate rejects fixes that are structurally unusable.
func (p Position) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("geo: latitude %v out of range", p.Lat)
	}
	if p.Long < -180 || p.Long > 180 {
		return fmt.Errorf("geo: longitude %v out of range", p.Long)
	}
	if p.Accuracy < 0 {
		return fmt.Errorf("geo: negative accuracy %v", p.Accuracy)
	}
	return nil
}

// Fresh reports whether the fix was captured within maxAge of now.
func (p Position) Fresh(now time.Time, maxAge time.Duration) bool {
	if p.Timestamp.IsZero() {
		return false
	}
	age := now.Sub(p.Timestamp)
	return age >= 0 && age <= maxAge
}

// Weak reports whether the accuracy radius is bad enough to warn about.
func (p Position) Weak() bool {
	return p.Accuracy > WeakAccuracyMeters
}

func (p Position) String() string {
	return fmt.Sprintf("(%.6f, %.6f) ±%.0fm", p.Lat, p.Long, p.Accuracy)
}

// DistanceMeters returns the great-circle distance between two fixes.
func DistanceMeters(a, b Position) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	deltaPhi := radians(b.Lat - a.Lat)
	deltaLambda := radians(b.Long - a.Long)

	h := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
