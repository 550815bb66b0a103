package middleware

import (
	midsec "PulseChat/middleware/security"
	"PulseChat/service/session"

	"github.com/gin-gonic/gin"
)

type RouteOpt struct {
	IsAuth bool
}

// POST registers a POST route, optionally behind the auth middleware.
func POST(r gin.IRoutes, p *session.Provider, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.POST(path, midsec.Middleware(p, midsec.DefaultOptions()), handler)
	} else {
		r.POST(path, handler)
	}
}

// GET registers a GET route, optionally behind the auth middleware.
func GET(r gin.IRoutes, p *session.Provider, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.GET(path, midsec.Middleware(p, midsec.DefaultOptions()), handler)
	} else {
		r.GET(path, handler)
	}
}
