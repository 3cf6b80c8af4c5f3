package eto

import "errors"

// Per-city kernel failures. These drop a city from the run during the
// orchestration task's compute phase but never abort the batch.
var (
	// ErrMissingColumns is returned when a required hourly field (temp,
	// wind speed, or shortwave radiation) is not finite for some hour.
	ErrMissingColumns = errors.New("eto: required hourly column missing or non-finite")

	// ErrInsufficientHours is returned when fewer than 24 hourly
	// observations are supplied.
	ErrInsufficientHours = errors.New("eto: fewer than 24 hourly observations")
)
