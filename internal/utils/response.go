package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func Success(c *gin.Context, data gin.H) {
	Respond(c, http.StatusOK, data)
}

// Respond writes a success envelope with an explicit status, e.g. 202 for
// queued work.
func Respond(c *gin.Context, code int, data gin.H) {
	c.JSON(code, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}

// ErrorWithDetails adds machine-readable fields (error kind, failed stage)
// next to the message.
func ErrorWithDetails(c *gin.Context, code int, msg string, details gin.H) {
	body := gin.H{
		"success": false,
		"error":   msg,
	}
	for k, v := range details {
		body[k] = v
	}
	c.JSON(code, body)
}
