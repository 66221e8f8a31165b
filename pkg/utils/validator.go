package utils

import (
	"fmt"
	"regexp"
)

var (
	subscriberIDPattern = regexp.MustCompile(`^[0-9]{1,8}$`)
	consoleIDPattern    = regexp.MustCompile(`^[A-Za-z0-9._-]{1,32}$`)
)

// ValidateIdentity checks a subscriber identity. ISSI and GSSI numbers are
// decimal with at most eight digits; a dispatcher console may use a name.
func ValidateIdentity(id, identityType string) error {
	switch identityType {
	case "ISSI", "GSSI":
		if !subscriberIDPattern.MatchString(id) {
			return fmt.Errorf("invalid %s: %q", identityType, id)
		}
	case "DISPATCHER", "":
		if !consoleIDPattern.MatchString(id) {
			return fmt.Errorf("invalid dispatcher id: %q", id)
		}
	default:
		return fmt.Errorf("unknown identity type: %q", identityType)
	}
	return nil
}
