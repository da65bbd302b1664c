// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
)

// ReportRouteHandler defines the interface for issuance report handlers.
type ReportRouteHandler interface {
	GetOptions(c *gin.Context)
	GetSummary(c *gin.Context)
	GetDiscipline(c *gin.Context)
}

// RegisterReportRoutes registers the read-only report routes of one report family.
//
// Usage:
//
//	handler := handlers.NewReportsHandler(baseHandler, service)
//	RegisterReportRoutes(reports.Group("/issues"), handler)
func RegisterReportRoutes(group *gin.RouterGroup, handler ReportRouteHandler) {
	group.GET("/options", handler.GetOptions)
	group.GET("/summary", handler.GetSummary)
	group.GET("/discipline", handler.GetDiscipline)
}
