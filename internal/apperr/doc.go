// Package apperr defines the error kinds returned by fundgate services.
//
// Services return *Error values carrying a Kind and a caller-facing message.
// The HTTP layer converts them with HTTPStatus:
//
//   - KindValidation: 400
//   - KindConflict, KindState: 409
//   - KindNotFound: 404
//   - KindDerivationMismatch, KindStorage, unclassified: 500
//
// Idempotent outcomes (a tag already registered, a payment already credited)
// are not errors; they are reported as flags on the success result.
package apperr
