package connectivity

import "time"

// State is a connectivity snapshot. Connected means a usable network link
// exists; InternetReachable is nil until a probe has run, then reports
// whether the probe endpoint answered.
type State struct {
	Connected         bool
	InternetReachable *bool
	CheckedAt         time.Time
}

// Online reports whether sync traffic is worth attempting. An unprobed link
// counts as online so the first sync after startup is not blocked waiting
// for the probe cycle.
func (s State) Online() bool {
	if !s.Connected {
		return false
	}
	if s.InternetReachable == nil {
		return true
	}
	return *s.InternetReachable
}

// Equal compares the parts of the state that subscribers care about.
func (s State) Equal(other State) bool {
	if s.Connected != other.Connected {
		return false
	}
	if (s.InternetReachable == nil) != (other.InternetReachable == nil) {
		return false
	}
	if s.InternetReachable != nil && *s.InternetReachable != *other.InternetReachable {
		return false
	}
	return true
}

func boolPtr(v bool) *bool { return &v }
