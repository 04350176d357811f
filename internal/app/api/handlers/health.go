package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/response"
)

type healthStatus struct {
	Status  string `json:"status"`
	Network string `json:"network"`
	Storage string `json:"storage"`
}

// @Summary      Health check
// @Description  Reports liveness together with the Casper network and storage driver in use
// @Tags         System
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /healthz [get]
func healthz(cfg *cfgpkg.Config) gin.HandlerFunc {
	body := response.OKT(healthStatus{
		Status:  "ok",
		Network: cfg.Casper.Network,
		Storage: string(cfg.Storage.Driver),
	})
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, body)
	}
}

func RegisterHealthRoutes(r gin.IRouter, cfg *cfgpkg.Config) {
	r.GET("/healthz", healthz(cfg))
}
