package policy

import (
	"fmt"
	"strings"
)

// GeneralError is the filename sentinel used for batch-level validation errors.
const GeneralError = "general"

// FileInfo is the metadata of one candidate file.
type FileInfo struct {
	Filename  string
	MIMEType  string
	SizeBytes int64
}

// ValidationError describes one validation rule violation. Filename is
// GeneralError for batch-level violations.
type ValidationError struct {
	Filename string
	Message  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Message)
}

// ValidationErrors is the ordered list of violations for one batch.
// A non-empty list rejects the whole batch.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, ", "))
}

// Validate checks a candidate batch against the policy registered under
// policyKey. All violations are collected, except that an unknown policy key
// short-circuits with a single general error since no further checks are
// possible without a policy.
func (r Registry) Validate(files []FileInfo, policyKey string) ValidationErrors {
	pol, err := r.Lookup(policyKey)
	if err != nil {
		return ValidationErrors{{
			Filename: GeneralError,
			Message:  fmt.Sprintf("Invalid upload type: %s", policyKey),
		}}
	}

	var errs ValidationErrors

	if len(files) > pol.MaxFiles {
		errs = append(errs, ValidationError{
			Filename: GeneralError,
			Message:  fmt.Sprintf("Maximum %d files allowed, got %d", pol.MaxFiles, len(files)),
		})
	}

	// Every occurrence after the first one is flagged.
	seen := make(map[string]bool, len(files))
	for _, file := range files {
		if seen[file.Filename] {
			errs = append(errs, ValidationError{
				Filename: file.Filename,
				Message:  "Duplicate file",
			})
		}
		seen[file.Filename] = true
	}

	for _, file := range files {
		if !pol.AllowsType(file.MIMEType) {
			errs = append(errs, ValidationError{
				Filename: file.Filename,
				Message:  fmt.Sprintf("Invalid file type. Allowed: %s", strings.Join(pol.AllowedTypes, ", ")),
			})
		}

		if file.SizeBytes > pol.MaxSizeBytes {
			errs = append(errs, ValidationError{
				Filename: file.Filename,
				Message: fmt.Sprintf("File too large. Maximum %.2fMB, got %.2fMB",
					toMB(pol.MaxSizeBytes), toMB(file.SizeBytes)),
			})
		}

		if file.SizeBytes == 0 {
			errs = append(errs, ValidationError{
				Filename: file.Filename,
				Message:  "File is empty",
			})
		}
	}

	return errs
}

func toMB(bytes int64) float64 {
	return float64(bytes) / 1024 / 1024
}
