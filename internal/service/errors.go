// Package service holds helpers shared by the clinic services.
package service

import (
	"context"
	stderrors "errors"

	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/pkg/errors"
)

// MapError translates a repository error about resource into an AppError.
// Errors that already are AppErrors, and context errors, pass through.
func MapError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return err
	case stderrors.Is(err, repository.ErrNotFound):
		return errors.NotFound(resource, err)
	case stderrors.Is(err, repository.ErrDuplicate):
		return errors.Conflict(resource+" already exists", err)
	case stderrors.Is(err, repository.ErrReferenced):
		return errors.Conflict(resource+" is referenced by other records", err)
	case stderrors.Is(err, repository.ErrConstraint):
		return errors.BadRequest("invalid "+resource, err)
	case stderrors.Is(err, repository.ErrInsufficientStock):
		return errors.BadRequest("insufficient stock", err)
	}
	return errors.Internal(err)
}
