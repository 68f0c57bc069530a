package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NotFound returns a JSON 404 for unknown routes.
func NotFound(c *gin.Context) {
	writeError(c, http.StatusNotFound, codeNotFound, "not found")
}

// MethodNotAllowed returns a JSON 405 for known paths hit with the wrong method.
func MethodNotAllowed(c *gin.Context) {
	writeError(c, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
}
