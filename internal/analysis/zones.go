package analysis

import "fmt"

// Fractions holds the upper zone boundaries as fractions of max HR
// (or FTP for power). Zone 1 and zone 6 have no boundary of their
// own: zone 1 exists only inside distributions, zone 6 is everything
// above Z5Upper.
type Fractions struct {
	Z2Upper float64 `json:"z2_upper"`
	Z3Upper float64 `json:"z3_upper"`
	Z4Upper float64 `json:"z4_upper"`
	Z5Upper float64 `json:"z5_upper"`
}

// DefaultFractions returns the classic five-zone boundary scheme.
func DefaultFractions() Fractions {
	return Fractions{Z2Upper: 0.70, Z3Upper: 0.80, Z4Upper: 0.88, Z5Upper: 0.95}
}

// Validate checks that the boundaries ascend strictly and each lies
// strictly inside (0,1). Invalid fractions must never be applied;
// callers keep the prior configuration active on rejection.
func (f Fractions) Validate() error {
	boundaries := []float64{f.Z2Upper, f.Z3Upper, f.Z4Upper, f.Z5Upper}
	for _, b := range boundaries {
		if b <= 0 || b >= 1 {
			return fmt.Errorf("%w: boundary %.3f outside (0,1)", ErrInvalidConfig, b)
		}
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			return fmt.Errorf("%w: boundaries must ascend", ErrInvalidConfig)
		}
	}
	return nil
}

// BoundsFor converts the fractions to absolute units. Pure
// multiplication, no clamping: the fractions are trusted to have been
// validated.
func (f Fractions) BoundsFor(max int) Bounds {
	m := float64(max)
	return Bounds{
		Z2Upper: f.Z2Upper * m,
		Z3Upper: f.Z3Upper * m,
		Z4Upper: f.Z4Upper * m,
		Z5Upper: f.Z5Upper * m,
	}
}

// Bounds holds absolute zone upper boundaries in bpm or watts.
type Bounds struct {
	Z2Upper float64 `json:"z2_upper"`
	Z3Upper float64 `json:"z3_upper"`
	Z4Upper float64 `json:"z4_upper"`
	Z5Upper float64 `json:"z5_upper"`
}

// ZoneOf buckets a single value into zones 2..6 by ascending boundary
// comparison. A lone value below Z2Upper is still zone 2: a single
// sample is never classified as recovery, only a distribution is.
func (b Bounds) ZoneOf(value float64) int {
	switch {
	case value <= b.Z2Upper:
		return 2
	case value <= b.Z3Upper:
		return 3
	case value <= b.Z4Upper:
		return 4
	case value <= b.Z5Upper:
		return 5
	default:
		return 6
	}
}
