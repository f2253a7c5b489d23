package utils

import (
	"context"
	"testing"
)

func TestDereferencePtr_Defaults(t *testing.T) {
	if got := DereferencePtr[string](nil); got != "" {
		t.Fatalf("nil pointer must yield zero value, got %q", got)
	}
	if got := DereferencePtr(nil, "fallback"); got != "fallback" {
		t.Fatalf("nil pointer must yield the default, got %q", got)
	}
	if got := DereferencePtr(Ptr(42), 7); got != 42 {
		t.Fatalf("non-nil pointer must win over the default, got %d", got)
	}
}

func TestUniqueSlice_KeepsFirstOccurrenceOrder(t *testing.T) {
	got := UniqueSlice([]string{"a", "b", "a", "c", "b"})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := SplitAndTrim(" a.example.com , ,b.example.com ")
	if len(got) != 2 || got[0] != "a.example.com" || got[1] != "b.example.com" {
		t.Fatalf("unexpected result: %v", got)
	}
	if SplitAndTrim("  ") != nil {
		t.Fatal("blank input must yield nil")
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(66.666666); got != 66.67 {
		t.Fatalf("expected 66.67, got %v", got)
	}
}

func TestJsonHelpers_RoundTrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	raw, err := MarshalToJSON(payload{Name: "weekly hardware", Count: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got payload
	if err := UnmarshalFromJSON([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != "weekly hardware" || got.Count != 3 {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestContextHelpers_SetAndGet(t *testing.T) {
	ctx := context.Background()

	if _, ok := GetScheduleIdFromContext(ctx); ok {
		t.Fatal("unset schedule id must not be found")
	}
	if _, ok := GetTriggeredByFromContext(ctx); ok {
		t.Fatal("unset trigger must not be found")
	}

	ctx = SetScheduleIdInContext(ctx, 7)
	ctx = SetTriggeredByInContext(ctx, "manual")
	ctx = SetCorrelationIdInContext(ctx, "abc-123")

	if id, ok := GetScheduleIdFromContext(ctx); !ok || id != 7 {
		t.Fatalf("schedule id: got %d, %v", id, ok)
	}
	if trigger, ok := GetTriggeredByFromContext(ctx); !ok || trigger != "manual" {
		t.Fatalf("trigger: got %q, %v", trigger, ok)
	}
	if cid, ok := GetCorrelationIdFromContext(ctx); !ok || cid != "abc-123" {
		t.Fatalf("correlation id: got %q, %v", cid, ok)
	}
}
