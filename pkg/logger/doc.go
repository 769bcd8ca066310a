// Package logger provides slog helpers shared across the signup core:
// a small factory for configured *slog.Logger instances and attribute
// constructors that keep log field names consistent between services.
//
// Identifier attributes mask their values (see Email) so raw personal data
// never reaches operational logs.
package logger
