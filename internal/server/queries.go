package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	casehttpmapper "github.com/Apurer/worktrack/internal/domains/cases/adapters/http/mapper"
	wihttpmapper "github.com/Apurer/worktrack/internal/domains/workitems/adapters/http/mapper"
	widomain "github.com/Apurer/worktrack/internal/domains/workitems/domain"
)

// Get /v1/work-items/:id
func (a *api) GetWorkItem(c *gin.Context) {
	item, err := a.deps.WorkItems.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wihttpmapper.FromWorkItem(item))
}

// Get /v1/queues/:userId/:lens/:queueId
func (a *api) GetQueue(c *gin.Context) {
	key := widomain.QueueKey{UserID: c.Param("userId"), Lens: c.Param("lens"), QueueID: c.Param("queueId")}
	queue, err := a.deps.WorkItems.GetQueue(c.Request.Context(), key)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wihttpmapper.FromQueue(queue))
}

// Get /v1/cases/:id
func (a *api) GetCase(c *gin.Context) {
	found, err := a.deps.Cases.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, casehttpmapper.FromCase(found))
}

// Get /v1/metrics
// Projector lag, counters and recent categorized log entries
func (a *api) GetMetrics(c *gin.Context) {
	snapshot, err := a.deps.Projections.Snapshot(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
