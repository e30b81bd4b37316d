package model

import "errors"

var (
	ErrMissingData          = errors.New("model: missing data")
	ErrMissingParameter     = errors.New("model: missing parameter")
	ErrPartialObservation   = errors.New("model: partial observation")
	ErrShapeMismatch        = errors.New("model: shape mismatch")
	ErrDimensionConflict    = errors.New("model: dimension conflict")
	ErrUnresolvedDimension  = errors.New("model: unresolved dimension")
	ErrUnsupportedSpecEntry = errors.New("model: unsupported spec entry")
	ErrDuplicateName        = errors.New("model: duplicate name")
	ErrUnknownName          = errors.New("model: unknown name")
)
