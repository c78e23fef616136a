package tracking

// UpdateFilter admits a position only once the device has moved far enough
// from the last accepted one.
type UpdateFilter struct {
	MinDistanceMeters float64
}

// Accept reports whether candidate should be recorded. With no previous
// position every candidate is accepted.
func (f UpdateFilter) Accept(candidate Position, lastAccepted *Position) bool {
	if lastAccepted == nil {
		return true
	}
	return candidate.DistanceTo(*lastAccepted) >= f.MinDistanceMeters
}
