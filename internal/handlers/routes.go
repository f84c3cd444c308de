package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the handlers. An empty origins list allows any origin.
func NewRouter(h *Handler, origins []string) *gin.Engine {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type"}
	if len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}

	r := gin.New()
	r.MaxMultipartMemory = maxUploadSize
	r.Use(gin.Recovery(), requestLogger(), cors.New(corsConfig), limitBody(maxUploadSize))

	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
	r.POST("/predict/image", h.PredictFromImage)

	api := r.Group("/api")
	api.POST("/image", h.SelectImage)
	api.POST("/paste", h.Paste)
	api.POST("/run", h.Run)
	api.GET("/status", h.Status)
	api.GET("/image", h.Image)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
