package response

import (
	"net/http"
	"strconv"

	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// GetUserID retrieves the authenticated user ID from the context
func GetUserID(c *gin.Context) (int64, error) {
	raw, exists := c.Get("user_id")
	if !exists {
		return 0, apperror.ErrUnauthorized
	}

	s, ok := raw.(string)
	if !ok {
		return 0, apperror.ErrUnauthorized
	}
	userID, err := strconv.ParseInt(s, 10, 64)
	if err != nil || userID <= 0 {
		return 0, apperror.ErrUnauthorized
	}

	return userID, nil
}

// ParamID reads a positive integer path parameter.
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.New(http.StatusBadRequest, "invalid "+name, apperror.ErrBadRequest)
	}
	return id, nil
}

// ResponseError standardized error response
func ResponseError(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	// Log internal errors
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("internal error")
		c.JSON(code, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(code, gin.H{"error": err.Error()})
}
