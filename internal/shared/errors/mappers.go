package errors

import (
	"errors"

	eventports "github.com/Apurer/worktrack/internal/domains/eventlog/ports"
	"github.com/Apurer/worktrack/internal/shared/command"
)

// CommandMapper renders the rejections every command handler can return.
func CommandMapper(err error) (ProblemDetail, bool) {
	var rejection *command.Rejection
	switch {
	case errors.As(err, &rejection):
		return ErrValidation.WithCode(rejection.Code).WithDetail(rejection.Message), true
	case errors.Is(err, command.ErrValidationRejected):
		return ErrValidation.WithCode(command.CodeValidationRejected).WithDetail(err.Error()), true
	case errors.Is(err, eventports.ErrConcurrencyConflict):
		return ErrConflict.WithCode(command.CodeConcurrencyConflict).WithDetail(err.Error()), true
	case errors.Is(err, command.ErrUnknownCommand):
		return ErrUnknownCommand.WithCode(command.CodeUnknownCommand).WithDetail(err.Error()), true
	}
	return ProblemDetail{}, false
}

// NotFoundMapper renders any of sentinels as a 404 with the not_found code.
func NotFoundMapper(sentinels ...error) ErrorMapper {
	return func(err error) (ProblemDetail, bool) {
		for _, sentinel := range sentinels {
			if errors.Is(err, sentinel) {
				return ErrNotFound.WithCode(command.CodeNotFound).WithDetail(err.Error()), true
			}
		}
		return ProblemDetail{}, false
	}
}

// StatusMapper renders sentinel as template with err as detail.
func StatusMapper(sentinel error, template ProblemDetail) ErrorMapper {
	return func(err error) (ProblemDetail, bool) {
		if errors.Is(err, sentinel) {
			return template.WithDetail(err.Error()), true
		}
		return ProblemDetail{}, false
	}
}
