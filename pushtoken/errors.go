package pushtoken

import "errors"

var (
	ErrSigningOut       = errors.New("pushtoken: sign-out in progress")
	ErrNotDevice        = errors.New("pushtoken: push notifications need a physical device")
	ErrPermissionDenied = errors.New("pushtoken: notification permission not granted")
	ErrTokenAcquisition = errors.New("pushtoken: could not acquire push token")
	ErrInvalidToken     = errors.New("pushtoken: platform returned malformed token")
	ErrOffline          = errors.New("pushtoken: no connectivity, registration deferred")
	ErrSkipped          = errors.New("pushtoken: registration skipped")
)

// terminal errors are not retried by the Controller.
func terminal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNotDevice) ||
		errors.Is(err, ErrSigningOut)
}
