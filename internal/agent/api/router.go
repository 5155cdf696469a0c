package api

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerTagNameOnce sync.Once

// useJSONFieldNames makes validation errors report json field names.
func useJSONFieldNames() {
	registerTagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// SetupRoutes configures the agent control routes
func SetupRoutes(router gin.IRouter, handler *Handler) {
	useJSONFieldNames()

	router.POST("/start_agent", handler.StartAgent)
	router.POST("/stop_agent", handler.StopAgent)
	router.GET("/health", handler.Health)

	agents := router.Group("/agents")
	{
		agents.GET("", handler.ListAgents)
		agents.GET("/history", handler.ListHistory)
		agents.GET("/stream", handler.StreamEvents)
	}
}
