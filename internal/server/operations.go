package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	projports "github.com/Apurer/worktrack/internal/domains/projections/ports"
)

// Post /internal/sweep
// Runs one maintenance pass. A caller overlapping a running pass gets skipped=true
func (a *api) Sweep(c *gin.Context) {
	result, err := a.deps.Maintenance.Run(c.Request.Context())
	if err != nil {
		a.logger.WarnContext(c.Request.Context(), "maintenance pass finished with errors", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"result": result, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Post /internal/projectors/:name/rebuild
func (a *api) RebuildProjector(c *gin.Context) {
	name, ok := a.projectorParam(c)
	if !ok {
		return
	}
	result, err := a.deps.Rebuilds.Rebuild(c.Request.Context(), name)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Post /internal/projectors/:name/pause
func (a *api) PauseProjector(c *gin.Context) {
	name, ok := a.projectorParam(c)
	if !ok {
		return
	}
	cp, err := a.deps.Projections.Pause(c.Request.Context(), name)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// Post /internal/projectors/:name/resume
func (a *api) ResumeProjector(c *gin.Context) {
	name, ok := a.projectorParam(c)
	if !ok {
		return
	}
	cp, err := a.deps.Projections.Resume(c.Request.Context(), name)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// projectorParam resolves the name here so remote orchestrators never see
// an unknown projector.
func (a *api) projectorParam(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if !slices.Contains(a.deps.Projections.Names(), name) {
		a.fail(c, fmt.Errorf("%w: %s", projports.ErrUnknownProjector, name))
		return "", false
	}
	return name, true
}
