package recurrence

import "errors"

// ErrUnsupportedRule is returned when an RRULE cannot be mapped to or from
// the rule model.
var ErrUnsupportedRule = errors.New("unsupported recurrence rule")
