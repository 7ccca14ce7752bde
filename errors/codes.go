// Package errors provides the structured error handling used across the ZIP builder.
// It extends Go's standard error handling with string error codes, retry classification,
// context preservation, and an HTTP-like status for callers that surface build failures
// over a web endpoint.
package errors

// ErrorCode represents a specific error condition in the ZIP builder.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Resource errors.

	// CodeNotFound indicates a requested resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a resource already exists and cannot be created again.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// Infrastructure errors.

	// CodeNetwork indicates a network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// Execution errors.

	// CodeExecutionFailed indicates a general execution failure.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// Build pipeline errors.

	// CodeAllocationFailed indicates no unique workspace could be created.
	// It aborts the whole build run.
	CodeAllocationFailed ErrorCode = "ALLOCATION_FAILED"

	// CodeExportFailed indicates a version's source tree could not be exported
	// or the export produced no files. Only the affected version is skipped.
	CodeExportFailed ErrorCode = "EXPORT_FAILED"

	// CodeTimestampFailed indicates the latest file timestamp of a tree
	// could not be determined. Only the affected version is skipped.
	CodeTimestampFailed ErrorCode = "TIMESTAMP_FAILED"

	// CodeArchiveFailed indicates the archive writer failed.
	// Only the affected version is skipped.
	CodeArchiveFailed ErrorCode = "ARCHIVE_FAILED"

	// CodeCheckoutFailed indicates the destination repository could not be
	// checked out or prepared for the package.
	CodeCheckoutFailed ErrorCode = "CHECKOUT_FAILED"

	// CodeCommitFailed indicates the destination commit failed or changed nothing.
	CodeCommitFailed ErrorCode = "COMMIT_FAILED"

	// CodePublishFailed indicates a publish operation (cache purge, upload) failed.
	CodePublishFailed ErrorCode = "PUBLISH_FAILED"

	// System errors.

	// CodeInternal indicates an internal system error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnavailable indicates the service is temporarily unavailable.
	CodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Generic errors.

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// retryableCodes lists the codes whose failures are worth attempting again
// on a later run without any change of input.
var retryableCodes = map[ErrorCode]bool{
	CodeNetwork:     true,
	CodeTimeout:     true,
	CodeUnavailable: true,
	// A timed out or flaky export is picked up again by the next build.
	CodeExportFailed: true,
}

// statusCodes maps codes onto the HTTP-like statuses the web layer reports.
var statusCodes = map[ErrorCode]int{
	CodeNotFound:         404,
	CodeAlreadyExists:    409,
	CodeInvalidInput:     400,
	CodeInvalidConfig:    500,
	CodeNetwork:          502,
	CodeTimeout:          504,
	CodeExecutionFailed:  500,
	CodeAllocationFailed: 500,
	CodeExportFailed:     404,
	CodeTimestampFailed:  503,
	CodeArchiveFailed:    503,
	CodeCheckoutFailed:   502,
	CodeCommitFailed:     502,
	CodePublishFailed:    502,
	CodeInternal:         500,
	CodeUnavailable:      503,
}

// Retryable reports whether errors carrying this code are transient.
func (c ErrorCode) Retryable() bool {
	return retryableCodes[c]
}

// Status returns the HTTP-like status conventionally reported for this code.
// Unknown codes map to 500.
func (c ErrorCode) Status() int {
	if s, ok := statusCodes[c]; ok {
		return s
	}
	return 500
}
