//go:build !cgo

package sqlite

// DriverCgo is unavailable without cgo; opening it fails with an unknown
// driver error.
const DriverCgo = "sqlite3"

func driverFor(name string) string { return name }

func isCgoUniqueViolation(error) bool { return false }
