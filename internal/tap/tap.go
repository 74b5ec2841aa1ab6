// Package tap runs Singer tap executables: catalog discovery and
// record extraction. Taps are external commands named tap-<name> that
// speak line-delimited JSON on stdout.
package tap

import (
	"strings"
)

// CommandName returns the executable name for a tap. Names already
// carrying the tap- prefix are used as-is.
func CommandName(name string) string {
	if strings.HasPrefix(name, "tap-") {
		return name
	}
	return "tap-" + name
}
