package notifier

import "errors"

// ErrNotifier wraps every alert delivery failure. Delivery is best-effort,
// so callers log these and move on.
var ErrNotifier = errors.New("alert delivery failure")
