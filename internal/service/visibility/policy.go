package visibility

import "strings"

// DefaultHiddenPrefixes lists the paths where the widget is never shown.
var DefaultHiddenPrefixes = []string{"/settings"}

// IsChatAllowed reports whether the widget may render on currentPath under the
// default policy.
func IsChatAllowed(currentPath string) bool {
	return Policy{HiddenPrefixes: DefaultHiddenPrefixes}.Allowed(currentPath)
}

// Policy hides the widget on any path starting with one of HiddenPrefixes.
type Policy struct {
	HiddenPrefixes []string
}

// Allowed is a pure function of the path and the policy.
func (p Policy) Allowed(currentPath string) bool {
	for _, prefix := range p.HiddenPrefixes {
		if prefix != "" && strings.HasPrefix(currentPath, prefix) {
			return false
		}
	}
	return true
}
