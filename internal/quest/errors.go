package quest

import (
	"errors"

	"github.com/ashureev/schema-quest/internal/progression"
)

var (
	// ErrNotFound is returned for unknown sessions and sessions owned by someone else.
	ErrNotFound = errors.New("quest not found")
	// ErrInvalidState marks a request that raced the session forward, such as a
	// decision after completion or a superseded refine.
	ErrInvalidState = errors.New("request does not apply to the current quest state")
	// ErrNoSelection is returned when a rationale arrives before an option was chosen.
	ErrNoSelection = errors.New("no option selected")
	// ErrBusy is returned while another submission for the same session is running.
	ErrBusy = errors.New("quest is busy")
	// ErrUnknownOption is returned when the chosen value is not one of the options.
	ErrUnknownOption = errors.New("unknown option")
	// ErrNoPackage is returned when exporting before the package exists.
	ErrNoPackage = errors.New("final package not ready")
	// ErrNothingToSay is returned by Speak when there is no text.
	ErrNothingToSay = errors.New("nothing to say")
)

// IsIgnorable reports errors that reflect a client race rather than a real
// failure. Callers should drop them silently.
func IsIgnorable(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrBusy) ||
		progression.IsInvalidState(err)
}
