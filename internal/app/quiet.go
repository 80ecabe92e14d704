package app

// inQuietWindow reports whether the given wall-clock hour falls inside the
// suppression window [start, end). A start greater than end wraps past
// midnight, so (23, 6) covers 23:00 through 05:59. Equal bounds mean an
// empty window.
// Params: hour of day and normalized window bounds.
// Returns: true when checks must be suppressed.
func inQuietWindow(hour, start, end int) bool {
	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}
