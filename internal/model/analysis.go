package model

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cast"
)

// Strategy is passed through to the analysis service untouched
type Strategy struct {
	RiskPreference   string `json:"risk_preference" mapstructure:"risk_preference" validate:"omitempty,oneof=low medium high"`
	TrendSensitivity string `json:"trend_sensitivity" mapstructure:"trend_sensitivity" validate:"omitempty,oneof=low medium high"`
	Bias             string `json:"bias" mapstructure:"bias" validate:"omitempty,oneof=long short neutral"`
}

// DefaultStrategy is the strategy preselected in the trader view
func DefaultStrategy() Strategy {
	return Strategy{
		RiskPreference:   "medium",
		TrendSensitivity: "high",
		Bias:             "neutral",
	}
}

// WithDefaults fills empty fields from DefaultStrategy
func (s Strategy) WithDefaults() Strategy {
	d := DefaultStrategy()
	if s.RiskPreference == "" {
		s.RiskPreference = d.RiskPreference
	}
	if s.TrendSensitivity == "" {
		s.TrendSensitivity = d.TrendSensitivity
	}
	if s.Bias == "" {
		s.Bias = d.Bias
	}
	return s
}

// SimilarPattern is one historical look-alike reported by the analysis.
// The service names the return "return"; ReturnValue is the reconciled copy.
type SimilarPattern struct {
	PatternDate  string   `json:"pattern_date"`
	KlineSegment string   `json:"kline_segment"`
	Result       string   `json:"result"`
	Return       *float64 `json:"return,omitempty"`
	ReturnValue  *float64 `json:"return_value,omitempty"`
	Similarity   float64  `json:"similarity"`
}

// AnalysisResult is the analysis service response plus the fields filled in
// client side (FormattedSymbol, StockName).
type AnalysisResult struct {
	Symbol                    string                 `json:"symbol"`
	Action                    string                 `json:"action,omitempty"`
	Trend                     string                 `json:"trend"`
	Confidence                float64                `json:"confidence"`
	Logic                     string                 `json:"logic"`
	ExpectedReturn            float64                `json:"expected_return,omitempty"`
	WillTrade                 bool                   `json:"will_trade,omitempty"`
	SupportLevel              string                 `json:"support_level"`
	ResistanceLevel           string                 `json:"resistance_level"`
	DetailedAnalysis          map[string]interface{} `json:"detailed_analysis,omitempty"` // price_analysis, volume_analysis, ...
	HistoricalSimilarPatterns []SimilarPattern       `json:"historical_similar_patterns,omitempty"`

	FormattedSymbol string `json:"formatted_symbol"`
	StockName       string `json:"stock_name"`
}

// ReconcileReturns sets ReturnValue on every pattern from Return when the
// service sent it, keeping any existing ReturnValue otherwise.
func (r *AnalysisResult) ReconcileReturns() {
	for i := range r.HistoricalSimilarPatterns {
		p := &r.HistoricalSimilarPatterns[i]
		if p.Return != nil {
			v := *p.Return
			p.ReturnValue = &v
		}
	}
}

// UnmarshalJSON decodes a pattern leniently. Returns and similarity may be
// numbers, numeric strings or percentages such as "5%"; anything else is
// treated as absent.
func (p *SimilarPattern) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	similarity, _ := ratioOf(raw["similarity"])
	*p = SimilarPattern{
		PatternDate:  textOf(raw["pattern_date"]),
		KlineSegment: textOf(raw["kline_segment"]),
		Result:       textOf(raw["result"]),
		Similarity:   similarity,
	}
	if f, ok := ratioOf(raw["return"]); ok {
		p.Return = &f
	}
	if f, ok := ratioOf(raw["return_value"]); ok {
		p.ReturnValue = &f
	}
	return nil
}

// UnmarshalJSON decodes an analysis leniently. The service relays the model
// output without a schema, so scalar fields are converted to their declared
// type and patterns that are not objects are dropped.
func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	val := func(key string) interface{} {
		var v interface{}
		if msg, ok := raw[key]; ok {
			_ = json.Unmarshal(msg, &v)
		}
		return v
	}

	confidence, _ := ratioOf(val("confidence"))
	expected, _ := ratioOf(val("expected_return"))
	willTrade, _ := cast.ToBoolE(val("will_trade"))
	detailed, _ := val("detailed_analysis").(map[string]interface{})

	*r = AnalysisResult{
		Symbol:           textOf(val("symbol")),
		Action:           textOf(val("action")),
		Trend:            textOf(val("trend")),
		Confidence:       confidence,
		Logic:            textOf(val("logic")),
		ExpectedReturn:   expected,
		WillTrade:        willTrade,
		SupportLevel:     textOf(val("support_level")),
		ResistanceLevel:  textOf(val("resistance_level")),
		DetailedAnalysis: detailed,
		FormattedSymbol:  textOf(val("formatted_symbol")),
		StockName:        textOf(val("stock_name")),
	}

	var patterns []json.RawMessage
	if msg, ok := raw["historical_similar_patterns"]; ok && json.Unmarshal(msg, &patterns) == nil {
		for _, pm := range patterns {
			var p SimilarPattern
			if err := json.Unmarshal(pm, &p); err != nil {
				continue
			}
			r.HistoricalSimilarPatterns = append(r.HistoricalSimilarPatterns, p)
		}
	}
	return nil
}

// textOf renders a scalar as text. Objects and lists keep their JSON form.
func textOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return ""
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return cast.ToString(v)
}

// ratioOf reads a number, accepting a trailing percent sign as /100
func ratioOf(v interface{}) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return number(v)
	}
	s = strings.TrimSpace(s)
	if pct, found := strings.CutSuffix(s, "%"); found {
		f, ok := number(strings.TrimSpace(pct))
		return f / 100, ok
	}
	return number(s)
}

// ConnectionResult is the outcome of probing the AI settings
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
