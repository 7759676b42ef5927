// Package domain defines core data models and interfaces shared across certagent.
// It contains plain types (wire/state) and contracts (interfaces) only; the
// subpackages hold the definitions and this package re-exports them for
// compact imports.
package domain
