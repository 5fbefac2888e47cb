// Package errors provides structured error types for the WASI host.
//
// Errors are categorized by Phase (where in a session's lifecycle the error
// occurred) and Kind (error category). The Error type carries a path, the
// offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConfig, errors.KindInvalidInput).
//		Path("Preopens", "/data").
//		Detail("host path %s does not exist", dir).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidDescriptor(fd)
//	err := errors.OutOfBounds(offset, length, memSize)
//
// Import resolution failures are reported as *UnsatisfiedImportError, which
// names every missing host function at once.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
