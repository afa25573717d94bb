package adminapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/talkincode/wacrm/internal/domain"
	"github.com/talkincode/wacrm/internal/webserver"
)

const xlsxSheet = "Sheet1"

// crmRow is the flat export of a CRM record, one row per conversation.
type crmRow struct {
	TenantID       string `csv:"tenant_id"`
	ConversationID string `csv:"conversation_id"`
	ContactName    string `csv:"contact_name"`
	ContactPhone   string `csv:"contact_phone"`
	Messages       int    `csv:"messages"`
	FollowUp       string `csv:"follow_up"`
	LastMessageAt  string `csv:"last_message_at"`
	IsCustomer     string `csv:"is_customer"`
	Summary        string `csv:"summary"`
	LeadScore      int    `csv:"lead_score"`
	LeadStage      string `csv:"lead_stage"`
	Items          string `csv:"items"`
	ExportedAt     string `csv:"exported_at"`
}

var crmHeaders = []string{
	"tenant_id", "conversation_id", "contact_name", "contact_phone", "messages",
	"follow_up", "last_message_at", "is_customer", "summary", "lead_score",
	"lead_stage", "items", "exported_at",
}

func (r crmRow) values() []interface{} {
	return []interface{}{
		r.TenantID, r.ConversationID, r.ContactName, r.ContactPhone, r.Messages,
		r.FollowUp, r.LastMessageAt, r.IsCustomer, r.Summary, r.LeadScore,
		r.LeadStage, r.Items, r.ExportedAt,
	}
}

func toRow(rec *domain.CRMRecord) crmRow {
	return crmRow{
		TenantID:       rec.TenantID,
		ConversationID: rec.ConversationID,
		ContactName:    rec.ContactName,
		ContactPhone:   rec.ContactPhone,
		Messages:       len(rec.Messages),
		FollowUp:       rec.FollowUp,
		LastMessageAt:  rec.LastMessageAt,
		IsCustomer:     rec.IsCustomer,
		Summary:        rec.Summary,
		LeadScore:      rec.LeadScore,
		LeadStage:      rec.LeadStage,
		Items:          strings.Join(rec.Items, "; "),
		ExportedAt:     rec.ExportedAt.Format(time.RFC3339),
	}
}

func registerCRMRoutes(s *webserver.Server) {
	s.ApiGET("/crm/:tenantId", getCRMRecords)
}

// getCRMRecords lists a tenant's exported conversations.
// Query: format=json (default) | csv | xlsx
func getCRMRecords(c echo.Context) error {
	tenantID := c.Param("tenantId")
	records, err := GetAppContext(c).Repo().ListConversations(c.Request().Context(), tenantID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query CRM records", err.Error())
	}

	format := strings.ToLower(strings.TrimSpace(c.QueryParam("format")))
	switch format {
	case "", "json":
		return ok(c, map[string]interface{}{"total": len(records), "records": records})
	case "csv":
		rows := make([]crmRow, 0, len(records))
		for _, rec := range records {
			rows = append(rows, toRow(rec))
		}
		setAttachment(c, tenantID, "csv", "text/csv; charset=utf-8")
		return gocsv.Marshal(&rows, c.Response())
	case "xlsx":
		f := excelize.NewFile()
		for col, h := range crmHeaders {
			f.SetCellValue(xlsxSheet, excelize.ToAlphaString(col)+"1", h)
		}
		for i, rec := range records {
			for col, v := range toRow(rec).values() {
				f.SetCellValue(xlsxSheet, excelize.ToAlphaString(col)+strconv.Itoa(i+2), v)
			}
		}
		setAttachment(c, tenantID, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		return f.Write(c.Response())
	default:
		return fail(c, http.StatusBadRequest, "INVALID_FORMAT", "format must be json, csv or xlsx", nil)
	}
}

func setAttachment(c echo.Context, tenantID, ext, contentType string) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, contentType)
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "crm-"+tenantID+"."+ext))
	c.Response().WriteHeader(http.StatusOK)
}
