package rotation

import (
	"fmt"
	"strings"

	ferrors "github.com/systmms/felix/internal/errors"
)

// DefaultServiceDepth is the index of the service segment in an identity
// path: "/service/<name>/..." puts the service name at index 1.
const DefaultServiceDepth = 1

// ParseLocator splits an identity path into the service name and the
// locator handed to that service's plugin. The locator is every segment
// after the service followed by the identity name. Empty segments are
// ignored; nothing else about the locator is checked.
func ParseLocator(path, name string, depth int) (service, locator string, err error) {
	if depth < 0 {
		depth = DefaultServiceDepth
	}

	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	if len(segments) <= depth {
		return "", "", ferrors.ValidationError{
			Op:      "ParseLocator",
			Message: fmt.Sprintf("path %q has no service segment at depth %d", path, depth),
		}
	}

	service = segments[depth]
	rest := append([]string{}, segments[depth+1:]...)
	if name != "" {
		rest = append(rest, name)
	}
	return service, strings.Join(rest, "/"), nil
}

// SplitLocator splits a locator into its group and leaf: every segment but
// the last is the group. It returns an error when there are fewer than two
// segments.
func SplitLocator(locator string) (group, leaf string, err error) {
	idx := strings.LastIndex(locator, "/")
	if idx <= 0 || idx == len(locator)-1 {
		return "", "", ferrors.ValidationError{
			Op:      "SplitLocator",
			Message: fmt.Sprintf("locator %q must have the form <group>/<name>", locator),
		}
	}
	return locator[:idx], locator[idx+1:], nil
}
