package utils

import (
	"github.com/gin-gonic/gin"
)

// Envelope is the body shape of every API response
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response
func JSONError(c *gin.Context, status int, err error, message string) {
	c.JSON(status, Envelope{
		Status:  status,
		Message: message,
		Error:   err.Error(),
	})
}

// JSONPartial sends data that was stored together with a follow-up failure
func JSONPartial(c *gin.Context, status int, data any, err error, message string) {
	c.JSON(status, Envelope{
		Status:  status,
		Message: message,
		Data:    data,
		Error:   err.Error(),
	})
}
