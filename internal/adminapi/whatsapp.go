package adminapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/wacrm/internal/export"
	"github.com/talkincode/wacrm/internal/repository"
	"github.com/talkincode/wacrm/internal/session"
	"github.com/talkincode/wacrm/internal/webserver"
	"go.uber.org/zap"
)

type startPayload struct {
	MaxChats           int    `json:"maxChats"`
	MaxMessagesPerChat int    `json:"maxMessagesPerChat"`
	Prompt             string `json:"prompt"`
}

type sendPayload struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

func registerSessionRoutes(s *webserver.Server) {
	s.ApiPOST("/start/:tenantId", postStart)
	s.ApiPOST("/send-message/:tenantId", postSendMessage)
	s.ApiGET("/qr-status/:tenantId", getQRStatus)
	s.ApiGET("/qr/:tenantId", getQRCode)
	s.ApiGET("/sessions", listSessions)
	s.ApiDELETE("/session/:tenantId", deleteSession)
}

// postStart admits a session and answers once the first QR challenge is
// stored. Request JSON: { "maxChats": 20, "maxMessagesPerChat": 1000, "prompt": "..." }
func postStart(c echo.Context) error {
	tenantID := strings.TrimSpace(c.Param("tenantId"))
	if tenantID == "" {
		return fail(c, http.StatusBadRequest, "MISSING_TENANT", "tenantId is required", nil)
	}
	var payload startPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}

	res, err := GetAppContext(c).Sessions().Start(c.Request().Context(), session.StartRequest{
		TenantID: tenantID,
		Prompt:   payload.Prompt,
		Origin:   c.RealIP(),
		Options: export.Options{
			MaxChats:           payload.MaxChats,
			MaxMessagesPerChat: payload.MaxMessagesPerChat,
		},
	})
	switch {
	case errors.Is(err, session.ErrMissingPrompt):
		return fail(c, http.StatusBadRequest, "MISSING_PROMPT", "prompt is required", nil)
	case errors.Is(err, session.ErrAlreadyScanned):
		return fail(c, http.StatusBadRequest, "ALREADY_SCANNED", "QR code already scanned for this tenant", nil)
	case errors.Is(err, session.ErrAlreadyStarted):
		return fail(c, http.StatusBadRequest, "ALREADY_STARTED", "Session already started for this tenant", nil)
	case err != nil:
		zap.L().Error("adminapi: start session failed", zap.String("tenant", tenantID), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "QR_GENERATION_FAILED", "Failed to generate QR code", err.Error())
	}
	return ok(c, map[string]interface{}{"success": true, "authenticated": res.Authenticated})
}

// postSendMessage sends a text through the tenant's live session.
// Request JSON: { "recipient": "5215550001", "message": "hola" }
func postSendMessage(c echo.Context) error {
	tenantID := c.Param("tenantId")
	var payload sendPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if strings.TrimSpace(payload.Recipient) == "" || payload.Message == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "recipient and message are required", nil)
	}

	err := GetAppContext(c).Sessions().SendMessage(c.Request().Context(), tenantID, payload.Recipient, payload.Message)
	switch {
	case errors.Is(err, session.ErrNoSession):
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "No active session for this tenant", nil)
	case errors.Is(err, session.ErrNotAuthenticated):
		return fail(c, http.StatusBadRequest, "NOT_AUTHENTICATED", "Session is not authenticated", nil)
	case err != nil:
		zap.L().Warn("adminapi: send message failed", zap.String("tenant", tenantID), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "SEND_FAILED", "Failed to send message", err.Error())
	}
	return ok(c, map[string]interface{}{"success": true})
}

func getQRStatus(c echo.Context) error {
	qr, err := GetAppContext(c).Repo().GetQR(c.Request().Context(), c.Param("tenantId"))
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, http.StatusNotFound, "QR_NOT_FOUND", "QR code not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query QR code", err.Error())
	}
	return ok(c, map[string]interface{}{"estado": qr.Status})
}

func getQRCode(c echo.Context) error {
	qr, err := GetAppContext(c).Repo().GetQR(c.Request().Context(), c.Param("tenantId"))
	if errors.Is(err, repository.ErrNotFound) || (err == nil && qr.QRCode == "") {
		return fail(c, http.StatusNotFound, "QR_NOT_FOUND", "QR code not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query QR code", err.Error())
	}
	return ok(c, map[string]interface{}{"qrCode": qr.QRCode})
}

func listSessions(c echo.Context) error {
	return ok(c, map[string]interface{}{"sessions": GetAppContext(c).Sessions().Sessions()})
}

func deleteSession(c echo.Context) error {
	tenantID := c.Param("tenantId")
	if err := GetAppContext(c).Sessions().Logout(tenantID); errors.Is(err, session.ErrNoSession) {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "No active session for this tenant", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "LOGOUT_FAILED", "Failed to close session", err.Error())
	}
	zap.L().Info("adminapi: session closed", zap.String("tenant", tenantID))
	return ok(c, map[string]interface{}{"success": true})
}
