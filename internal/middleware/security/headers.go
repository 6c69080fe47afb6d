// Package security sets response headers for the JSON API.
package security

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// HeadersConfig holds security headers configuration
type HeadersConfig struct {
	// Content Security Policy
	CSP string

	// HSTS settings
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	CrossOriginResource string
	CacheControl        string
}

// DefaultHeadersConfig returns defaults for an API that serves no documents.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:                   "default-src 'none'; frame-ancestors 'none'",
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
		CrossOriginResource:   "cross-origin",
		CacheControl:          "no-store",
	}
}

// Headers returns gin middleware applying config to every response.
func Headers(config HeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d", config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		set := func(key, value string) {
			if value != "" {
				h.Set(key, value)
			}
		}
		set("X-Content-Type-Options", config.XContentTypeOptions)
		set("X-Frame-Options", config.XFrameOptions)
		set("Content-Security-Policy", config.CSP)
		set("Referrer-Policy", config.ReferrerPolicy)
		set("Cross-Origin-Resource-Policy", config.CrossOriginResource)
		set("Cache-Control", config.CacheControl)

		// HSTS only for HTTPS
		if c.Request.TLS != nil {
			set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
