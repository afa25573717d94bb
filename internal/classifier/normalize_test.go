package classifier

import (
	"reflect"
	"testing"
	"time"

	"github.com/talkincode/wacrm/internal/domain"
)

var fixedNow = time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)

func TestNormalizeEmptyObjectGivesDefaults(t *testing.T) {
	got := Normalize(map[string]interface{}{}, fixedNow)
	want := Defaults(fixedNow)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize({}) = %+v, want %+v", got, want)
	}
	if got.LastMessageAt != "2024-03-15T12:30:00Z" {
		t.Errorf("LastMessageAt = %q, want RFC3339 now", got.LastMessageAt)
	}
	if got.Items == nil {
		t.Error("Items must be an empty list, not nil")
	}
}

func TestNormalizeNilObject(t *testing.T) {
	if got := Normalize(nil, fixedNow); got.FollowUp != domain.FlagNo || got.LeadScore != 0 {
		t.Errorf("Normalize(nil) = %+v", got)
	}
}

func TestNormalizeEachFieldDefaultsIndependently(t *testing.T) {
	fields := map[string]interface{}{
		"follow_up":       "Sí",
		"last_message_at": "2024-03-01 10:00:00",
		"is_customer":     true,
		"summary":         "  Busca depa en renta  ",
		"lead_score":      "8",
		"lead_stage":      "interested",
		"items":           []interface{}{"Casa Polanco", " ", "Depto Roma"},
	}
	full := Normalize(fields, fixedNow)
	if full.FollowUp != domain.FlagYes || full.IsCustomer != domain.FlagYes {
		t.Errorf("flags = %q/%q, want Yes/Yes", full.FollowUp, full.IsCustomer)
	}
	if full.LastMessageAt != "2024-03-01T10:00:00Z" {
		t.Errorf("LastMessageAt = %q", full.LastMessageAt)
	}
	if full.Summary != "Busca depa en renta" || full.LeadScore != 8 || full.LeadStage != "interested" {
		t.Errorf("unexpected %+v", full)
	}
	if !reflect.DeepEqual(full.Items, []string{"Casa Polanco", "Depto Roma"}) {
		t.Errorf("Items = %v", full.Items)
	}

	defaults := Defaults(fixedNow)
	for missing := range fields {
		subset := make(map[string]interface{}, len(fields)-1)
		for k, v := range fields {
			if k != missing {
				subset[k] = v
			}
		}
		got := Normalize(subset, fixedNow)
		switch missing {
		case "follow_up":
			if got.FollowUp != defaults.FollowUp {
				t.Errorf("missing follow_up: got %q", got.FollowUp)
			}
		case "last_message_at":
			if got.LastMessageAt != defaults.LastMessageAt {
				t.Errorf("missing last_message_at: got %q", got.LastMessageAt)
			}
		case "is_customer":
			if got.IsCustomer != defaults.IsCustomer {
				t.Errorf("missing is_customer: got %q", got.IsCustomer)
			}
		case "summary":
			if got.Summary != "" {
				t.Errorf("missing summary: got %q", got.Summary)
			}
		case "lead_score":
			if got.LeadScore != 0 {
				t.Errorf("missing lead_score: got %d", got.LeadScore)
			}
		case "lead_stage":
			if got.LeadStage != "" {
				t.Errorf("missing lead_stage: got %q", got.LeadStage)
			}
		case "items":
			if got.Items == nil || len(got.Items) != 0 {
				t.Errorf("missing items: got %#v", got.Items)
			}
		}
		// the remaining fields are untouched by the missing one
		if missing != "lead_score" && got.LeadScore != 8 {
			t.Errorf("missing %s changed lead_score to %d", missing, got.LeadScore)
		}
	}
}

func TestNormalizeAliasesAndCoercion(t *testing.T) {
	got := Normalize(map[string]interface{}{
		"Seguimiento":     "no",
		"Es Cliente":      "SI.",
		"Resumen":         "Cliente recurrente",
		"Puntuación":      "7/10",
		"Etapa":           "negotiating",
		"Propiedades":     "Lote 5",
		"unknown_field_x": 1,
	}, fixedNow)
	if got.FollowUp != domain.FlagNo || got.IsCustomer != domain.FlagYes {
		t.Errorf("flags = %q/%q, want No/Yes", got.FollowUp, got.IsCustomer)
	}
	if got.Summary != "Cliente recurrente" || got.LeadStage != "negotiating" {
		t.Errorf("unexpected %+v", got)
	}
	if got.LeadScore != 7 {
		t.Errorf("LeadScore = %d, want 7", got.LeadScore)
	}
	if !reflect.DeepEqual(got.Items, []string{"Lote 5"}) {
		t.Errorf("Items = %v, want [Lote 5]", got.Items)
	}
}

func TestNormalizeScore(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int
	}{
		{nil, 0},
		{float64(6.6), 7},
		{"9", 9},
		{"alto", 0},
		{float64(42), MaxLeadScore},
		{float64(-3), MinLeadScore},
		{"score: 4,5", 5},
		{map[string]interface{}{"x": 1}, 0},
	}
	for _, tt := range tests {
		if got := normalizeScore(tt.in); got != tt.want {
			t.Errorf("normalizeScore(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeFlag(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"Yes", domain.FlagYes},
		{"sí", domain.FlagYes},
		{"TRUE", domain.FlagYes},
		{float64(1), domain.FlagYes},
		{false, domain.FlagNo},
		{"maybe", domain.FlagNo},
		{float64(0), domain.FlagNo},
	}
	for _, tt := range tests {
		if got := normalizeFlag(tt.in); got != tt.want {
			t.Errorf("normalizeFlag(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeKeepsUnparseableTimestamp(t *testing.T) {
	got := Normalize(map[string]interface{}{"last_message_at": "ayer por la tarde"}, fixedNow)
	if got.LastMessageAt != "ayer por la tarde" {
		t.Errorf("LastMessageAt = %q, want raw value kept", got.LastMessageAt)
	}
}
