// Package store declares the persistence contract for async job runs.
// Implementations live in internal/storage; this package must not import
// database drivers.
package store
