package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/casperflow/internal/app/api/middleware"
	"github.com/fatflowers/casperflow/internal/app/service/usage"
)

type BatchUsageRequest struct {
	Records []usage.RecordRequest `json:"records" binding:"required,min=1,dive"`
}

// @Summary      Record usage
// @Description  Appends metered units to a subscription. The caller must be an authorized recorder of its plan.
// @Tags         Usage
// @Accept       json
// @Produce      json
// @Param        request body usage.RecordRequest true "Usage record"
// @Success      200  {object}  handlers.RespUsageRecord
// @Router       /api/v1/usage [post]
func ApiRecordUsage(meter *usage.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req usage.RecordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		rec, err := meter.RecordUsage(c.Request.Context(), mw.Caller(c), req)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, rec)
	}
}

// @Summary      Record usage batch
// @Description  Records several entries atomically; one rejected entry rejects the batch.
// @Tags         Usage
// @Accept       json
// @Produce      json
// @Param        request body handlers.BatchUsageRequest true "Usage records"
// @Success      200  {object}  handlers.RespUsageRecords
// @Router       /api/v1/usage/batch [post]
func ApiBatchRecordUsage(meter *usage.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchUsageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		recs, err := meter.BatchRecordUsage(c.Request.Context(), mw.Caller(c), req.Records)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, recs)
	}
}

func RegisterUsageRoutes(r gin.IRouter, meter *usage.Service, log *zap.SugaredLogger) {
	r.POST("/usage", ApiRecordUsage(meter, log))
	r.POST("/usage/batch", ApiBatchRecordUsage(meter, log))
}
