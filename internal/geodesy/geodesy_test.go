package geodesy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceSamePoint(t *testing.T) {
	p := GeoPoint{LatDeg: 40, LonDeg: -75}
	require.InDelta(t, 0, Distance(p, p), 1e-9)
}

func TestDistanceAntipodal(t *testing.T) {
	a := GeoPoint{LatDeg: 0, LonDeg: 0}
	b := GeoPoint{LatDeg: 0, LonDeg: 180}
	assert.InDelta(t, math.Pi*EarthRadiusKm, Distance(a, b), 1.0)
}

func TestInterpolateEndpoints(t *testing.T) {
	a := GeoPoint{LatDeg: 51.5, LonDeg: -0.1}
	b := GeoPoint{LatDeg: 48.85, LonDeg: 2.35}

	start := Interpolate(a, b, 0)
	end := Interpolate(a, b, 1)

	assert.InDelta(t, a.LatDeg, start.LatDeg, 1e-6)
	assert.InDelta(t, a.LonDeg, start.LonDeg, 1e-6)
	assert.InDelta(t, b.LatDeg, end.LatDeg, 1e-6)
	assert.InDelta(t, b.LonDeg, end.LonDeg, 1e-6)
}

func TestPhaseFractionsCappedByAbsoluteTime(t *testing.T) {
	// A very long flight should cap boost/reentry at the absolute-time limits.
	boost, reentry := PhaseFractions(200_000) // 200s flight
	assert.InDelta(t, MaxLaunchPhaseSeconds/200.0, boost, 1e-9)
	assert.InDelta(t, MaxReentryPhaseSeconds/200.0, reentry, 1e-9)
}

func TestPhaseFractionsCappedByFraction(t *testing.T) {
	// A very short flight should cap boost+reentry so they never exceed 1,
	// and each individually never exceeds MaxPhaseFraction.
	boost, reentry := PhaseFractions(8_000) // 8s flight, at the launch floor
	assert.LessOrEqual(t, boost, MaxPhaseFraction+1e-9)
	assert.LessOrEqual(t, reentry, MaxPhaseFraction+1e-9)
	assert.LessOrEqual(t, boost+reentry, 1.0+1e-9)
}

func TestAltitudeApexAtMidFlight(t *testing.T) {
	alt := Altitude(0.5, 0.2, 0.2, 500)
	assert.InDelta(t, 500, alt, 1e-6)
}

func TestAltitudeZeroAtEndpoints(t *testing.T) {
	assert.Equal(t, 0.0, Altitude(0, 0.2, 0.2, 500))
	assert.Equal(t, 0.0, Altitude(1, 0.2, 0.2, 500))
}

func TestApexAltitudeMonotonicInDistance(t *testing.T) {
	near := ApexAltitudeKm(0.1)
	far := ApexAltitudeKm(2.0)
	assert.Less(t, near, far)
}

func TestNormalizeAngleWraps(t *testing.T) {
	assert.InDelta(t, 0.1, NormalizeAngle(0.1), 1e-9)
	assert.InDelta(t, 0.1, NormalizeAngle(0.1+2*math.Pi), 1e-9)
	assert.InDelta(t, 2*math.Pi-0.1, NormalizeAngle(-0.1), 1e-9)
}
