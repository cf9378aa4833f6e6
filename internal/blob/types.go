// Package blob re-exports the blob abstractions and constructs stores.
// Packages outside the blob tree depend on this package, never on the
// drivers under internal/infra/blob.
package blob

import (
	"psimaker/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored object metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrExists is returned by Put for an occupied key.
	ErrExists = core.ErrExists
	// ErrNotFound is returned for a missing key.
	ErrNotFound = core.ErrNotFound
)
