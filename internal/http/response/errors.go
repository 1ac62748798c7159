package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ratebench-backend/internal/platform/apierr"
)

// RespondServiceError maps an *apierr.Error to its status and code. Anything
// else is reported as an internal error under fallbackCode.
func RespondServiceError(c *gin.Context, fallbackCode string, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) && ae.Status != 0 {
		RespondError(c, ae.Status, ae.Code, ae)
		return
	}
	RespondError(c, http.StatusInternalServerError, fallbackCode, err)
}
