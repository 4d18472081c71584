// Package services holds the error taxonomy shared by the backend client,
// the upload pipeline, and the sync engine, plus context annotation helpers
// for correlation across drain passes.
//
// Errors are tagged with sentinel markers (ErrNetwork, ErrTimeout, ErrAuth,
// ErrValidation, ErrCanceled, ErrTransient) so retry policy can be decided
// with errors.Is instead of string matching.
package services
