package service

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrAlreadyOnboarded = errors.New("onboarding already completed")
)

// InvalidResourceError lists the resource fields that failed validation.
type InvalidResourceError struct {
	Fields []string
}

func (e *InvalidResourceError) Error() string {
	return fmt.Sprintf("invalid resource fields: %s", strings.Join(e.Fields, ", "))
}
