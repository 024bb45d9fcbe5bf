package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPredictionsMarshalOrderedWithNull(t *testing.T) {
	ps := Predictions{
		{Year: 2024, Month: 2, Amount: decimal.NewNullDecimal(decimal.RequireFromString("101.25"))},
		{Year: 2024, Month: 1},
		{Year: 2024, Month: 10, Amount: decimal.NewNullDecimal(decimal.NewFromInt(7))},
	}
	b, err := json.Marshal(ps)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"2024-02":{"predicted_amount":101.25},"2024-01":{"predicted_amount":null},"2024-10":{"predicted_amount":7}}`
	if string(b) != want {
		t.Fatalf("unexpected json %s", b)
	}

	var back Predictions
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back) != 3 || back[0].Month != 2 || !back[1].Absent() || !back[2].Amount.Decimal.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("unexpected round trip %+v", back)
	}
}

func TestPeriodNextAndLabel(t *testing.T) {
	p := Period{Year: 2023, Month: 12}.Next()
	if p != (Period{Year: 2024, Month: 1}) || p.Label() != "2024-01" {
		t.Fatalf("unexpected next period %v", p)
	}
	if !(Period{Year: 2023, Month: 12}).Before(p) || p.Before(p) {
		t.Fatalf("unexpected ordering")
	}
	if (Period{Year: 2023, Month: 0}).Valid() {
		t.Fatalf("month 0 must be invalid")
	}
}

func TestSeriesFingerprintStable(t *testing.T) {
	a := Series{{Year: 2023, Month: 1, Total: decimal.NewFromInt(5)}}
	b := Series{{Year: 2023, Month: 1, Total: decimal.NewFromInt(5)}}
	c := Series{{Year: 2023, Month: 1, Total: decimal.NewFromInt(6)}}
	if a.Fingerprint() != b.Fingerprint() || a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("fingerprint not value-based")
	}
}
