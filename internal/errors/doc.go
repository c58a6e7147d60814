// Package errors defines error types for the hostwire transport.
//
// Protocol failures are modeled as a tagged variant: a Kind enum plus a
// ProtocolError carrying the structured details. Every Kind maps to a
// sentinel error so callers can match with errors.Is, or recover the
// details with errors.As / errors.AsType.
package errors
