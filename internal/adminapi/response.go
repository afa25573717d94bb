package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/wacrm/internal/app"
	"github.com/talkincode/wacrm/internal/webserver"
)

type errorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, errorResponse{Error: code, Message: message, Details: details})
}

// GetAppContext returns the application context set by the webserver.
func GetAppContext(c echo.Context) app.AppContext {
	appCtx, _ := c.Get(webserver.AppContextKey).(app.AppContext)
	return appCtx
}

// Register mounts every admin route on s.
func Register(s *webserver.Server) {
	registerSessionRoutes(s)
	registerCRMRoutes(s)
}
