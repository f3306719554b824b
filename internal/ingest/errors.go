package ingest

import (
	"errors"
	"fmt"

	"droneops-relay/internal/validate"
)

// Reason is the ingest rejection taxonomy.
type Reason string

const (
	InvalidAPIKey    Reason = "InvalidApiKey"
	IdentityMismatch Reason = "IdentityMismatch"
	MissingFields    Reason = "MissingFields"
	MalformedPayload Reason = "MalformedPayload"
	InternalError    Reason = "InternalError"
)

// Rejection is returned by Service.Submit for every refused batch.
type Rejection struct {
	Reason  Reason
	Field   string
	Message string
	// Stage is the last state reached before rejection.
	Stage Stage
	Err   error
}

func (r *Rejection) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s (%s): %s", r.Reason, r.Field, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func (r *Rejection) Unwrap() error { return r.Err }

// AsRejection extracts a Rejection from err. Unknown errors are reported as
// InternalError.
func AsRejection(err error) *Rejection {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej
	}
	return &Rejection{Reason: InternalError, Message: "internal error", Err: err}
}

func fromValidation(err error, stage Stage) *Rejection {
	var verr *validate.Error
	if !errors.As(err, &verr) {
		return &Rejection{Reason: MalformedPayload, Message: err.Error(), Stage: stage, Err: err}
	}
	return &Rejection{
		Reason:  Reason(verr.Reason),
		Field:   verr.Field,
		Message: verr.Message,
		Stage:   stage,
		Err:     err,
	}
}
