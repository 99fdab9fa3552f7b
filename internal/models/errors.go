package models

import "errors"

// Error taxonomy shared across the pipeline and the query surfaces. Callers
// branch with errors.Is; wrapped variants carry context.
var (
	// ErrNoData: the ledger (or a date-filtered slice of it) is empty.
	ErrNoData = errors.New("no order data")

	// ErrMissingArtifact: a query arrived before any successful refresh.
	ErrMissingArtifact = errors.New("analytics artifacts not yet available")

	// ErrInvalidInput: malformed date ranges, unparseable dates and the like.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound: customer name absent from the order history.
	ErrNotFound = errors.New("customer not found")

	// ErrArtifactCorrupt: model/scaler blobs unreadable or schema-mismatched.
	ErrArtifactCorrupt = errors.New("artifact corrupt")

	// ErrRefreshInFlight: a refresh run is already active.
	ErrRefreshInFlight = errors.New("refresh already in progress")
)
