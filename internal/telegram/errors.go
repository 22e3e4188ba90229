package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnauthorized is returned when an account has no usable session or
// requires a second factor that is not configured.
var ErrUnauthorized = errors.New("telegram account unauthorized")

// FloodWaitError is the rate-limit signal from the Telegram API: the caller
// must pause for Wait before retrying the same call.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("telegram flood wait: retry after %s", e.Wait)
}

// AsFloodWait extracts the signaled wait duration from an error chain.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}

// floodWaitSeconds parses the FLOOD_WAIT_X marker out of an API error.
// Matching on the error string avoids deep coupling to the gotd error types,
// which wrap differently depending on the call site.
func floodWaitSeconds(err error) int {
	if err == nil {
		return 0
	}
	str := err.Error()
	if !strings.Contains(str, "FLOOD_WAIT_") {
		return 0
	}
	parts := strings.Split(str, "FLOOD_WAIT_")
	if len(parts) < 2 {
		return 0
	}
	var seconds int
	// the marker may carry a suffix like " (caused by ...)"
	_, _ = fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &seconds)
	return seconds
}

// wrapAPIError converts FLOOD_WAIT markers into typed FloodWaitError values
// and wraps everything else with call context.
func wrapAPIError(op string, err error) error {
	if err == nil {
		return nil
	}
	if seconds := floodWaitSeconds(err); seconds > 0 {
		return &FloodWaitError{Wait: time.Duration(seconds) * time.Second}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isAuthError reports whether an error indicates a missing or invalid
// authorization, including a required-but-unconfigured 2FA password.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	str := strings.ToUpper(err.Error())
	for _, marker := range []string{
		"SESSION_PASSWORD_NEEDED",
		"AUTH_KEY_UNREGISTERED",
		"AUTH_KEY_INVALID",
		"SESSION_REVOKED",
		"USER_DEACTIVATED",
		"UNAUTHORIZED",
		"NOT AUTHORIZED",
		"2FA",
	} {
		if strings.Contains(str, marker) {
			return true
		}
	}
	return false
}
