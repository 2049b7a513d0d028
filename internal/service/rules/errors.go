package rules

import "errors"

// Sentinel errors for the rules service layer.
var (
	ErrNotFound     = errors.New("rule not found")
	ErrOwnerChanged = errors.New("rule cannot be moved to another owner")
)
