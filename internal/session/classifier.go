package session

import (
	"strings"

	"github.com/zapdesk/wabridge/internal/wa"
)

// Category is the recovery category of a disconnect event. It drives
// both the reconnect decision and the backoff base delay.
type Category int

const (
	// CategoryGenericTransient covers every disconnect with no special
	// handling: retried with backoff up to the attempt cap.
	CategoryGenericTransient Category = iota
	// CategoryConnectionLost is a 428 close while valid credentials
	// exist. Same recovery as generic, but with a more conservative
	// base delay.
	CategoryConnectionLost
	// CategoryRestartRequired is the protocol asking for a reconnect
	// after pairing (515). Always retried, shortest base delay.
	CategoryRestartRequired
	// CategoryNoCredsTerminate is a 428 close without credentials:
	// pairing never completed, nothing to reconnect with.
	CategoryNoCredsTerminate
	// CategoryDeviceRemoved means the account owner unlinked this
	// device (401/403/440 conflict). Credentials are dead.
	CategoryDeviceRemoved
	// CategoryLoggedOut is an explicit local logout. Indistinguishable
	// from user intent, so it must never auto-retry.
	CategoryLoggedOut
)

func (c Category) String() string {
	switch c {
	case CategoryConnectionLost:
		return "connection_lost"
	case CategoryRestartRequired:
		return "restart_required"
	case CategoryNoCredsTerminate:
		return "no_creds_terminate"
	case CategoryDeviceRemoved:
		return "device_removed"
	case CategoryLoggedOut:
		return "logged_out"
	default:
		return "generic_transient"
	}
}

// Terminal reports whether the category ends the session without a
// scheduled reconnect.
func (c Category) Terminal() bool {
	switch c {
	case CategoryNoCredsTerminate, CategoryDeviceRemoved, CategoryLoggedOut:
		return true
	}
	return false
}

// WipesCredentials reports whether the category invalidates stored
// credentials and on-disk session artifacts.
func (c Category) WipesCredentials() bool {
	return c.Terminal()
}

// deviceRemovedPatterns is the message-substring fallback used only
// when the structured status code is absent.
var deviceRemovedPatterns = []string{
	"device_removed",
	"device removed",
	"conflict",
}

// Classify maps a close event to its recovery category. The status
// code is authoritative; message matching is a fallback for
// device-removed detection only. The function is pure: hasCreds is the
// single piece of session state it consults, supplied by the caller.
func Classify(code int, message string, hasCreds bool) Category {
	switch code {
	case wa.CodeLoggedOut:
		return CategoryLoggedOut
	case wa.CodeTerminated:
		if hasCreds {
			return CategoryConnectionLost
		}
		return CategoryNoCredsTerminate
	case wa.CodeRestartRequired:
		return CategoryRestartRequired
	case wa.CodeUnauthorized, wa.CodeForbidden, wa.CodeConflict:
		return CategoryDeviceRemoved
	}

	if code == 0 {
		lower := strings.ToLower(message)
		for _, p := range deviceRemovedPatterns {
			if strings.Contains(lower, p) {
				return CategoryDeviceRemoved
			}
		}
	}

	return CategoryGenericTransient
}
