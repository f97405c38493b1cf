package nql

import (
	"testing"

	"nqlc/internal/platform/testkit"
)

func validPayload() string {
	return `{
		"nql_version": "0.1",
		"intent": "aggregate",
		"dataset": "incidents",
		"metrics": [{"name": "incidents", "agg": "count", "alias": "incidents"}],
		"time": {"grain": "month", "window": {"type": "single_month", "start": "2024-03-01"}}
	}`
}

func TestDecode_Defaults(t *testing.T) {
	q, err := Decode([]byte(validPayload()))
	testkit.MustNoErr(t, err)

	if q.Limit != 100 {
		t.Fatalf("default limit = %d, want 100", q.Limit)
	}
	if q.Time.TZ != "America/Chicago" {
		t.Fatalf("default tz = %q", q.Time.TZ)
	}
	if q.Flags.RowcapHint != 10000 {
		t.Fatalf("default rowcap_hint = %d", q.Flags.RowcapHint)
	}
	if !q.Flags.QuarterExclusiveEnd || !q.Flags.LikePassthrough {
		t.Fatalf("normalization flags should default on: %+v", q.Flags)
	}
}

func TestDecode_RejectsUnknownTopLevelField(t *testing.T) {
	payload := `{
		"nql_version": "0.1",
		"intent": "aggregate",
		"dataset": "incidents",
		"metrics": [{"name": "incidents", "agg": "count", "alias": "incidents"}],
		"time": {"grain": "month", "window": {"type": "single_month", "start": "2024-03-01"}},
		"mystery": true
	}`
	_, err := Decode([]byte(payload))
	testkit.MustErr(t, err, "mystery")
}

func TestDecode_RejectsUnknownEnum(t *testing.T) {
	payload := `{
		"nql_version": "0.1",
		"intent": "summon",
		"dataset": "incidents",
		"metrics": [{"name": "incidents", "agg": "count", "alias": "incidents"}],
		"time": {"grain": "month", "window": {"type": "single_month", "start": "2024-03-01"}}
	}`
	_, err := Decode([]byte(payload))
	testkit.MustErr(t, err, "intent")
}

func TestDecode_RejectsTrailingData(t *testing.T) {
	_, err := Decode([]byte(validPayload() + `{"again": 1}`))
	if err == nil {
		t.Fatal("expected error for trailing data")
	}
}
