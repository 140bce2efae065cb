// Package cmd provides command implementations for the modindex CLI.
package cmd

// Exit codes.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitValidationError indicates invalid configuration, arguments or filters.
	ExitValidationError = 2

	// ExitPersistenceError indicates the index document could not be written.
	ExitPersistenceError = 3

	// ExitNotFound indicates a directory or resource was not found.
	ExitNotFound = 4

	// ExitCancelled indicates the build was interrupted.
	ExitCancelled = 5
)

// ExitCodeName returns the name of the exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitSuccess:
		return "Success"
	case ExitGeneralError:
		return "General Error"
	case ExitValidationError:
		return "Validation Error"
	case ExitPersistenceError:
		return "Persistence Error"
	case ExitNotFound:
		return "Not Found"
	case ExitCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}
