package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxFileSize     = 5 * 1024 * 1024
	MaxFileNameLen  = 100
	fileSizeMessage = "File size must be less than 5MB"
	fileNameMessage = "File name must be less than 100 characters"
)

// AllowedFileTypes are the content types accepted for attachments.
var AllowedFileTypes = []string{"image/jpeg", "image/png", "application/pdf"}

// CheckFile validates an attachment before upload. All failing checks are
// reported, joined.
func CheckFile(name string, size int64, contentType string) error {
	var errs []error
	if size > MaxFileSize {
		errs = append(errs, errors.New(fileSizeMessage))
	}
	allowed := false
	for _, t := range AllowedFileTypes {
		if contentType == t {
			allowed = true
			break
		}
	}
	if !allowed {
		errs = append(errs, fmt.Errorf("File type must be one of: %s", strings.Join(AllowedFileTypes, ", "))) //nolint:stylecheck
	}
	if utf8.RuneCountInString(name) > MaxFileNameLen {
		errs = append(errs, errors.New(fileNameMessage))
	}
	return errors.Join(errs...)
}
