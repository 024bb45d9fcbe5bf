package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SalesRecord is one raw transaction row as supplied by an ingestion adapter.
// Date is kept as the source's raw text; parsing happens in preprocessing.
type SalesRecord struct {
	Date        string
	GrossAmount decimal.Decimal
	ProductName string
	Quantity    int
}

// MonthlyTotal is a (year, month) aggregate. It is both the pre-aggregated
// ingestion shape and the entry type of a canonical Series.
type MonthlyTotal struct {
	Year  int             `json:"year"`
	Month int             `json:"month"`
	Total decimal.Decimal `json:"total_gross_sales"`
}

// Period returns the calendar period of the total.
func (m MonthlyTotal) Period() Period { return Period{Year: m.Year, Month: m.Month} }

// SalesBatch is what a SalesSource returns. Normally only one of the two
// shapes is populated.
type SalesBatch struct {
	Records []SalesRecord
	Monthly []MonthlyTotal
}

// Len returns the number of raw rows in the batch.
func (b *SalesBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records) + len(b.Monthly)
}

// Period is a calendar month.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Label formats the period as YYYY-MM.
func (p Period) Label() string { return fmt.Sprintf("%04d-%02d", p.Year, p.Month) }

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	if p.Month >= 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Valid reports whether the month is in 1..12 and the year is positive.
func (p Period) Valid() bool { return p.Year > 0 && p.Month >= 1 && p.Month <= 12 }

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period { return Period{Year: t.Year(), Month: int(t.Month())} }

// Series is a canonical monthly series: sorted ascending, one entry per period.
type Series []MonthlyTotal

// Last returns the latest period of the series, or false when empty.
func (s Series) Last() (Period, bool) {
	if len(s) == 0 {
		return Period{}, false
	}
	return s[len(s)-1].Period(), true
}

// Fingerprint identifies the data snapshot. Equal series yield equal fingerprints.
func (s Series) Fingerprint() string {
	h := sha256.New()
	for _, m := range s {
		fmt.Fprintf(h, "%04d-%02d=%s;", m.Year, m.Month, m.Total.String())
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Prediction is the forecast for one period. An invalid Amount is the
// absent-marker for periods whose segment had no trainable history; it is
// not zero.
type Prediction struct {
	Year   int                 `json:"year"`
	Month  int                 `json:"month"`
	Amount decimal.NullDecimal `json:"predicted_amount"`
}

// Period returns the prediction's calendar period.
func (p Prediction) Period() Period { return Period{Year: p.Year, Month: p.Month} }

// Absent reports whether the prediction carries the absent-marker.
func (p Prediction) Absent() bool { return !p.Amount.Valid }

// Predictions is an ordered list of predictions. It marshals as a JSON object
// keyed by "YYYY-MM" preserving period order.
type Predictions []Prediction

// MarshalJSON writes {"YYYY-MM": {"predicted_amount": n|null}, ...} in order.
func (ps Predictions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range ps {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Period().Label())
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(`:{"predicted_amount":`)
		// decimal quotes its JSON by default; callers expect a bare number.
		if p.Amount.Valid {
			buf.WriteString(p.Amount.Decimal.String())
		} else {
			buf.WriteString("null")
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the ordered-object form written by MarshalJSON.
func (ps *Predictions) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("predictions: expected object")
	}
	out := Predictions{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := tok.(string)
		var p Prediction
		if _, err := fmt.Sscanf(label, "%04d-%02d", &p.Year, &p.Month); err != nil {
			return fmt.Errorf("predictions: bad period %q: %w", label, err)
		}
		var v struct {
			PredictedAmount decimal.NullDecimal `json:"predicted_amount"`
		}
		if err := dec.Decode(&v); err != nil {
			return err
		}
		p.Amount = v.PredictedAmount
		out = append(out, p)
	}
	*ps = out
	return nil
}
