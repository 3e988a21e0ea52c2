package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CreateTestRequest is the body of POST /api/tests.
type CreateTestRequest struct {
	URL  string   `json:"url" validate:"required"`
	Kind TestKind `json:"kind" validate:"required"`
}

// Validate checks presence only. URL parsing and kind checks belong to the
// orchestrator so the rejection order stays the same for every caller.
func (r *CreateTestRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: url and kind are required", ErrMalformedRequest)
	}
	return nil
}

// CreateTestResponse is returned with 201 Created.
type CreateTestResponse struct {
	TestID string `json:"testId"`
}

// ProvisionProfileRequest is the body of POST /api/admin/profiles.
type ProvisionProfileRequest struct {
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name"`
}

func (r *ProvisionProfileRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: userId and a valid email are required", ErrMalformedRequest)
	}
	return nil
}

// ProvisionProfileResponse carries the API key, which is never serialised
// as part of Profile itself.
type ProvisionProfileResponse struct {
	Profile *Profile `json:"profile"`
	APIKey  string   `json:"apiKey"`
	Created bool     `json:"created"`
}

// GrantCreditsRequest is the body of POST /api/admin/accounts/{id}/credits.
type GrantCreditsRequest struct {
	Amount int    `json:"amount" validate:"required,ne=0"`
	Note   string `json:"note" validate:"max=200"`
}

func (r *GrantCreditsRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: non-zero amount required", ErrInvalidAmount)
	}
	return nil
}

// ShareResponse is returned by the share toggle.
type ShareResponse struct {
	ShareID      string `json:"shareId,omitempty"`
	ShareEnabled bool   `json:"shareEnabled"`
}
