package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
)

func TestEncodeInjectsTraceHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.Baggage{})
	defer otel.SetTextMapPropagator(prev)

	member, err := baggage.NewMember("tenant", "sc-01")
	if err != nil {
		t.Fatalf("baggage member: %v", err)
	}
	bag, err := baggage.New(member)
	if err != nil {
		t.Fatalf("baggage: %v", err)
	}
	ctx := baggage.ContextWithBaggage(context.Background(), bag)

	e := Event{Subject: SubjectLineStatus, EntityID: "line-1", From: "PENDING_APPROVAL", To: "CUSTOMER_APPROVED", OccurredAt: time.Now()}
	msg, err := encode(ctx, "nimo."+e.Subject, e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.Subject != "nimo.warranty.line.status" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if msg.Header.Get("baggage") == "" {
		t.Error("expected baggage header to be injected")
	}

	var decoded Event
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.EntityID != "line-1" || decoded.To != "CUSTOMER_APPROVED" {
		t.Errorf("unexpected payload: %+v", decoded)
	}
}

func TestHeaderCarrierEmpty(t *testing.T) {
	var c headerCarrier
	if c.Get("x") != "" {
		t.Error("expected empty value from nil header")
	}
	if c.Keys() != nil {
		t.Error("expected nil keys from nil header")
	}
	c.Set("traceparent", "00-abc")
	if c.Get("traceparent") != "00-abc" || len(c.Keys()) != 1 {
		t.Error("expected header to be set")
	}
}

func TestRecorderCountsBySubject(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	_ = r.Publish(ctx, Event{Subject: SubjectLineStatus})
	_ = r.Publish(ctx, Event{Subject: SubjectLineStatus})
	_ = r.Publish(ctx, Event{Subject: SubjectTransferStatus})
	if got := r.Count(SubjectLineStatus); got != 2 {
		t.Errorf("expected 2 line events, got %d", got)
	}
	if got := len(r.Events()); got != 3 {
		t.Errorf("expected 3 events, got %d", got)
	}
}
