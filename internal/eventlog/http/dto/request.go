// Package dto provides data transfer objects for the event log HTTP layer.
package dto

import (
	validation "github.com/jellydator/validation"

	appValidation "github.com/shakamirtskhulava/eventlog/internal/validation"
)

// UpdateChainRequest represents the API request for flipping a chain's
// republish gate.
type UpdateChainRequest struct {
	ShouldRepublish *bool `json:"should_republish"`
}

// Validate validates the UpdateChainRequest.
func (r *UpdateChainRequest) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.ShouldRepublish,
			validation.NotNil.Error("should_republish is required"),
		),
	)
	return appValidation.WrapValidationError(err)
}

// UpdateMessageRequest represents the API request for flipping a failed
// message's skip gate.
type UpdateMessageRequest struct {
	ShouldSkip *bool `json:"should_skip"`
}

// Validate validates the UpdateMessageRequest.
func (r *UpdateMessageRequest) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.ShouldSkip,
			validation.NotNil.Error("should_skip is required"),
		),
	)
	return appValidation.WrapValidationError(err)
}
