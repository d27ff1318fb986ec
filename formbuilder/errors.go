package formbuilder

import "errors"

// Sentinel errors for form builder operations.
var (
	ErrStepNotFound     = errors.New("step not found")
	ErrFieldNotFound    = errors.New("field not found")
	ErrVersionNotFound  = errors.New("version not found")
	ErrInvalidField     = errors.New("invalid field")
	ErrInvalidFieldType = errors.New("invalid field type")
	ErrMoveOutOfRange   = errors.New("move out of range")
	ErrIDRequired       = errors.New("project type id is required")
	ErrNoStepSnapshot   = errors.New("version has no step snapshot")
)
