package model

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// DateLayout is the calendar-day layout used on the wire
const DateLayout = "2006-01-02"

// Bar is one trading day of a price series
type Bar struct {
	Date     string   `json:"date"`
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	Volume   int64    `json:"volume"`
	Turnover *float64 `json:"turnover,omitempty"` // percentage, absent for some markets
}

// UnmarshalJSON decodes a bar leniently: prices that are missing or not
// numeric decode as 0, a missing or negative volume as 0.
func (b *Bar) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*b = Bar{
		Date:   dateOf(raw["date"]),
		Open:   toFloat(raw["open"]),
		High:   toFloat(raw["high"]),
		Low:    toFloat(raw["low"]),
		Close:  toFloat(raw["close"]),
		Volume: int64(toFloat(raw["volume"])),
	}
	if b.Volume < 0 {
		b.Volume = 0
	}
	if f, ok := number(raw["turnover"]); ok {
		b.Turnover = &f
	}
	return nil
}

// Time returns the bar's calendar day at UTC midnight. Dates that cannot be
// parsed return the zero time.
func (b Bar) Time() time.Time {
	d := b.Date
	if len(d) > len(DateLayout) {
		d = d[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, d)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toFloat(v interface{}) float64 {
	f, _ := number(v)
	return f
}

// number converts v to a finite float. cast accepts "NaN" and "Inf", which
// would not survive a JSON round trip, so those count as malformed.
func number(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func dateOf(v interface{}) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// CachedSeries is the full history last fetched for one canonical symbol
type CachedSeries struct {
	Symbol    string    `json:"symbol"`
	Series    []Bar     `json:"data"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Clone returns a copy that shares no memory with c
func (c *CachedSeries) Clone() *CachedSeries {
	if c == nil {
		return nil
	}
	out := *c
	out.Series = make([]Bar, len(c.Series))
	for i, b := range c.Series {
		if b.Turnover != nil {
			t := *b.Turnover
			b.Turnover = &t
		}
		out.Series[i] = b
	}
	return &out
}

// HistoryResponse is the payload of the history endpoint. Older deployments
// name the bar list "series" instead of "data".
type HistoryResponse struct {
	Symbol    string `json:"symbol"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Adjust    string `json:"adjust,omitempty"`
	Data      []Bar  `json:"data"`
	Series    []Bar  `json:"series,omitempty"`
}

// Bars returns the bar list whichever field carried it
func (r *HistoryResponse) Bars() []Bar {
	if len(r.Data) > 0 {
		return r.Data
	}
	return r.Series
}

// StockBasic is the payload of the metadata endpoint
type StockBasic struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Area     string `json:"area"`
	Market   string `json:"market"`
}
