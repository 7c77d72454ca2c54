package application

import (
	"errors"

	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/shared/command"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrUnknownTier) {
		return command.Reject("%s", err.Error())
	}
	return err
}
