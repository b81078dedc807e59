package api

import "github.com/pairchat/pairchat/api/validator"

// Aliases so handlers can speak about validation without qualifying the
// subpackage everywhere.
type (
	Validator       = validator.Validator
	ValidationError = validator.ValidationError
)
