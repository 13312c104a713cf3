// Package exitcode provides standardized exit codes for scriptdepot
package exitcode

// Exit codes for the scriptdepot CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	ManifestError   = 3
	FileSystemError = 4
	NetworkError    = 5
	ChecksumError   = 6
	NotFound        = 7
	TimeoutError    = 8
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case ManifestError:
		return "Manifest error"
	case FileSystemError:
		return "File system error"
	case NetworkError:
		return "Network error"
	case ChecksumError:
		return "Checksum mismatch"
	case NotFound:
		return "Script not found"
	case TimeoutError:
		return "Timeout error"
	default:
		return "Unknown error"
	}
}
