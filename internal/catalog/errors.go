package catalog

import (
	"fmt"

	"curator/internal/services"
)

// CollisionError reports that a target path is already owned by another
// source entry. Collisions are never resolved automatically.
type CollisionError struct {
	TargetPath         string
	SourcePath         string
	ExistingSourcePath string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("target %q already mapped from %q; %q cannot claim it", e.TargetPath, e.ExistingSourcePath, e.SourcePath)
}

// ErrorKind classifies the error for failure routing.
func (e *CollisionError) ErrorKind() string {
	return services.KindCollision
}

func persistenceError(operation, subject string, err error) error {
	return services.Wrap(services.ErrPersistence, "catalog", operation, subject, err)
}

func notFound(operation, subject string) error {
	return services.Wrap(services.ErrNotFound, "catalog", operation, subject, nil)
}

func invalid(operation, message string) error {
	return services.Wrap(services.ErrValidation, "catalog", operation, message, nil)
}
