package service

import "errors"

var (
	// ErrSessionInactive rejects telemetry for an employee with no open
	// login session.
	ErrSessionInactive = errors.New("no active session for employee")

	// ErrRateLimited rejects telemetry beyond the per-employee ingest budget.
	ErrRateLimited = errors.New("telemetry rate limit exceeded")

	// ErrEmployeeNotFound is returned for lookups against unknown employees.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrInsufficientData means too few telemetry rows exist to evaluate.
	ErrInsufficientData = errors.New("insufficient activity data")
)
