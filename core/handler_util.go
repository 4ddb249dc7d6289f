package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope wraps every response body.
type Envelope struct {
	Success  bool   `json:"success"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Data     any    `json:"data"`
	Metadata any    `json:"metadata"`
}

// emptyList serializes as [] for absent data/metadata.
var emptyList = []any{}

func newEnvelope(success bool, code int, message string, data, metadata any) Envelope {
	if data == nil {
		data = emptyList
	}
	if metadata == nil {
		metadata = emptyList
	}
	return Envelope{Success: success, Code: code, Message: message, Data: data, Metadata: metadata}
}

func ok(code int, message string, data, metadata any) Envelope {
	return newEnvelope(true, code, message, data, metadata)
}

func fail(code int, message string) Envelope {
	return newEnvelope(false, code, message, nil, nil)
}

func validationFailed(err *ValidationError) Envelope {
	return newEnvelope(false, http.StatusUnprocessableEntity, "The given data was invalid.", err.Fields, nil)
}

func internalError(err error) Envelope {
	return fail(http.StatusBadRequest, "Internal server error, "+err.Error())
}

// respond writes env with its own code as HTTP status.
func respond(c *gin.Context, env Envelope) {
	c.JSON(env.Code, env)
}

// respondError sends a failed envelope and aborts the handler chain.
func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, fail(status, message))
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
