package classifier

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"github.com/talkincode/wacrm/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	MinLeadScore = 0
	MaxLeadScore = 10
)

// Analysis is the normalized classification of one conversation. Every
// field always holds a value.
type Analysis struct {
	FollowUp      string   `json:"follow_up"`
	LastMessageAt string   `json:"last_message_at"`
	IsCustomer    string   `json:"is_customer"`
	Summary       string   `json:"summary"`
	LeadScore     int      `json:"lead_score"`
	LeadStage     string   `json:"lead_stage"`
	Items         []string `json:"items"`
}

// Defaults returns the analysis used when the model gives nothing usable.
func Defaults(now time.Time) Analysis {
	return Analysis{
		FollowUp:      domain.FlagNo,
		LastMessageAt: now.Format(time.RFC3339),
		IsCustomer:    domain.FlagNo,
		Summary:       "",
		LeadScore:     0,
		LeadStage:     "",
		Items:         []string{},
	}
}

type rawAnalysis struct {
	FollowUp      interface{} `mapstructure:"follow_up"`
	LastMessageAt string      `mapstructure:"last_message_at"`
	IsCustomer    interface{} `mapstructure:"is_customer"`
	Summary       string      `mapstructure:"summary"`
	LeadScore     interface{} `mapstructure:"lead_score"`
	LeadStage     string      `mapstructure:"lead_stage"`
	Items         []string    `mapstructure:"items"`
}

// fieldAliases maps folded key spellings (lowercase, no accents, no
// separators) to the canonical field names of rawAnalysis.
var fieldAliases = map[string]string{
	"followup":               "follow_up",
	"needsfollowup":          "follow_up",
	"seguimiento":            "follow_up",
	"requiereseguimiento":    "follow_up",
	"lastmessageat":          "last_message_at",
	"lastmessage":            "last_message_at",
	"lastmessagedate":        "last_message_at",
	"ultimomensaje":          "last_message_at",
	"fechaultimomensaje":     "last_message_at",
	"iscustomer":             "is_customer",
	"customer":               "is_customer",
	"escliente":              "is_customer",
	"cliente":                "is_customer",
	"summary":                "summary",
	"resumen":                "summary",
	"leadscore":              "lead_score",
	"score":                  "lead_score",
	"puntuacion":             "lead_score",
	"puntaje":                "lead_score",
	"leadstage":              "lead_stage",
	"stage":                  "lead_stage",
	"etapa":                  "lead_stage",
	"etapalead":              "lead_stage",
	"items":                  "items",
	"properties":             "items",
	"propiedades":            "items",
	"inmuebles":              "items",
	"propiedadesmencionadas": "items",
}

// fold lowercases and strips accents. Chained transformers keep state, so
// one is built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func foldKey(k string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, fold(k))
}

// Normalize maps a decoded model object onto Analysis, defaulting each
// missing or unusable field on its own.
func Normalize(obj map[string]interface{}, now time.Time) Analysis {
	out := Defaults(now)
	if obj == nil {
		return out
	}

	canonical := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if name, ok := fieldAliases[foldKey(k)]; ok {
			if _, dup := canonical[name]; !dup {
				canonical[name] = v
			}
		}
	}

	var raw rawAnalysis
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return out
	}
	// partial results are kept, fields that failed stay zero
	if err := dec.Decode(canonical); err != nil {
		zap.L().Debug("classifier: partial decode", zap.Error(err))
	}

	if raw.FollowUp != nil {
		out.FollowUp = normalizeFlag(raw.FollowUp)
	}
	if raw.IsCustomer != nil {
		out.IsCustomer = normalizeFlag(raw.IsCustomer)
	}
	if ts := normalizeTimestamp(raw.LastMessageAt, now.Location()); ts != "" {
		out.LastMessageAt = ts
	}
	out.Summary = strings.TrimSpace(raw.Summary)
	out.LeadScore = normalizeScore(raw.LeadScore)
	out.LeadStage = strings.TrimSpace(raw.LeadStage)
	for _, item := range raw.Items {
		if item = strings.TrimSpace(item); item != "" {
			out.Items = append(out.Items, item)
		}
	}
	return out
}

var yesWords = map[string]bool{
	"yes": true, "y": true, "si": true, "s": true,
	"true": true, "1": true, "verdadero": true,
}

func normalizeFlag(v interface{}) string {
	switch t := v.(type) {
	case bool:
		if t {
			return domain.FlagYes
		}
		return domain.FlagNo
	case string:
		w := strings.TrimRight(fold(t), ".!")
		if yesWords[w] {
			return domain.FlagYes
		}
		return domain.FlagNo
	default:
		if f, err := cast.ToFloat64E(v); err == nil && f != 0 {
			return domain.FlagYes
		}
		return domain.FlagNo
	}
}

var numberRe = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

func normalizeScore(v interface{}) int {
	if v == nil {
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		s, ok := v.(string)
		if !ok {
			return 0
		}
		m := numberRe.FindString(s)
		if m == "" {
			return 0
		}
		if f, err = cast.ToFloat64E(strings.Replace(m, ",", ".", 1)); err != nil {
			return 0
		}
	}
	if math.IsNaN(f) {
		return 0
	}
	n := int(math.Round(f))
	if n < MinLeadScore {
		return MinLeadScore
	}
	if n > MaxLeadScore {
		return MaxLeadScore
	}
	return n
}

// normalizeTimestamp renders parseable dates as RFC 3339, dates without a
// zone are read in loc. Unparseable text is kept as is.
func normalizeTimestamp(s string, loc *time.Location) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return s
	}
	return t.Format(time.RFC3339)
}
