package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Error   bool   `json:"error"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Envelope{Data: data})
}

func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Envelope{Message: message, Data: data})
}

func Message(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Envelope{Message: message})
}

func Error(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Envelope{Error: true, Message: message})
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, Envelope{Error: true, Message: message})
}

func ErrorWithDetails(c *gin.Context, statusCode int, message string, details any) {
	c.JSON(statusCode, Envelope{Error: true, Message: message, Data: details})
}
