package shaper

import (
	"fmt"
	"regexp"
)

// Kernel interface names fit in IFNAMSIZ (15 usable bytes). The character
// set here is stricter than what the kernel accepts: every name ends up as
// a command argument, so anything outside the plain set is rejected before
// a command line is ever built.
var ifaceNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,15}$`)

// ValidateName rejects interface and bridge names outside the safe set.
func ValidateName(name string) error {
	if !ifaceNameRe.MatchString(name) {
		return fmt.Errorf("invalid interface name %q", name)
	}
	return nil
}
