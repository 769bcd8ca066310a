// Package taxonomy is the single source of truth for error codes, their
// user-facing messages, HTTP statuses and structured log shapes.
//
// Every authentication service maps its sentinel errors through FromError so
// messaging stays consistent across magic link and OAuth flows. Security
// codes deliberately collapse to one generic user message while the precise
// failure kind is preserved for logs via LogContext.
package taxonomy
