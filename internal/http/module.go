// Package http holds the contract between the router and the domain modules
// that mount routes on it.
package http

import (
	"github.com/gin-gonic/gin"
)

// Module is a bounded context that owns a set of routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is what the router hands to each module.
type RouterContext struct {
	// Protected is /api/v1 behind token authentication.
	Protected *gin.RouterGroup
	// Ingest is prepended to routes that accept inbound events, such as
	// the per-caller rate limit. It may be empty.
	Ingest []gin.HandlerFunc
}
