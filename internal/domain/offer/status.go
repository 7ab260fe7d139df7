package offer

import "time"

// Status is the lifecycle state of an offer. It is derived from the validity
// window on every persistence, except that a manual disable always wins.
type Status string

const (
	StatusActive    Status = "active"
	StatusScheduled Status = "scheduled"
	StatusExpired   Status = "expired"
	StatusDisabled  Status = "disabled"
)

// DeriveStatus computes the date-derived status for a validity window. The
// window is inclusive on both ends.
func DeriveStatus(validFrom, validTo, now time.Time) Status {
	switch {
	case now.Before(validFrom):
		return StatusScheduled
	case now.After(validTo):
		return StatusExpired
	default:
		return StatusActive
	}
}

// EffectiveStatus resolves the stored status against the validity window.
// Precedence: manual disabled > date-derived value. Callers use this both at
// write time (to persist a fresh status) and at read time, so the two can
// never drift.
func EffectiveStatus(stored Status, validFrom, validTo, now time.Time) Status {
	if stored == StatusDisabled {
		return StatusDisabled
	}
	return DeriveStatus(validFrom, validTo, now)
}
