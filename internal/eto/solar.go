package eto

import (
	"math"
	"time"
)

const solarConstant = 0.0820 // MJ m^-2 min^-1, Gsc

// extraterrestrialRadiation computes hourly Ra (MJ/m^2/h) per FAO-56
// equations 28-33. This is the one step in the kernel that must iterate
// hour-by-hour because it depends on the timestamp (day of year, hour
// of day) rather than being a pure elementwise transform of the input
// arrays.
//
// Observations are assumed to carry UTC timestamps (the forecast
// provider is queried with timezone=UTC), so the local standard time
// meridian Lz is 0 and the station's west-of-Greenwich longitude Lm is
// simply the negation of its (negative, western-hemisphere) longitude.
func extraterrestrialRadiation(ts time.Time, latitudeDeg, longitudeDeg float64) float64 {
	ts = ts.UTC()
	dayOfYear := float64(ts.YearDay())
	hour := float64(ts.Hour()) + 0.5 // midpoint of the hourly period

	phi := latitudeDeg * math.Pi / 180.0

	dr := 1 + 0.033*math.Cos(2*math.Pi*dayOfYear/365)
	delta := 0.409 * math.Sin(2*math.Pi*dayOfYear/365-1.39)

	b := 2 * math.Pi * (dayOfYear - 81) / 364
	sc := 0.1645*math.Sin(2*b) - 0.1255*math.Cos(b) - 0.025*math.Sin(b)

	lz := 0.0
	lm := -longitudeDeg

	omega := (math.Pi / 12.0) * ((hour + 0.06667*(lz-lm) + sc) - 12)
	omega1 := omega - math.Pi/24
	omega2 := omega + math.Pi/24

	ra := (12 * 60 / math.Pi) * solarConstant * dr * (
		(omega2-omega1)*math.Sin(phi)*math.Sin(delta) +
			math.Cos(phi)*math.Cos(delta)*(math.Sin(omega2)-math.Sin(omega1)))

	if ra < 0 || math.IsNaN(ra) {
		return 0
	}
	return ra
}
