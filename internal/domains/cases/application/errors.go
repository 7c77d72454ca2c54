package application

import (
	"errors"

	sla "github.com/Apurer/worktrack/internal/domains/sla/domain"
	"github.com/Apurer/worktrack/internal/shared/command"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sla.ErrUnknownSeverity) {
		return command.Reject("%s", err.Error())
	}
	return err
}
