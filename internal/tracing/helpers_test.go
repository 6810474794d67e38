package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder
}

func TestStartDBSpan(t *testing.T) {
	tests := []struct {
		name      string
		table     string
		operation DBOperation
	}{
		{"query with table", "ratings", DBOperationQuery},
		{"insert with table", "passive_observations", DBOperationInsert},
		{"update with table", "passive_observations", DBOperationUpdate},
		{"exec without table", "", DBOperationExec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := newSpanRecorder(t)

			_, endSpan := StartDBSpan(context.Background(), tt.table, tt.operation)
			endSpan(nil)

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]

			expectedName := string(tt.operation)
			if tt.table != "" {
				expectedName = expectedName + " " + tt.table
			}
			if span.Name() != expectedName {
				t.Errorf("expected span name %q, got %q", expectedName, span.Name())
			}

			hasSystem, hasTable := false, false
			for _, attr := range span.Attributes() {
				switch attr.Key {
				case "db.system":
					hasSystem = true
				case "db.sql.table":
					hasTable = true
					if attr.Value.AsString() != tt.table {
						t.Errorf("expected table %q, got %q", tt.table, attr.Value.AsString())
					}
				}
			}
			if !hasSystem {
				t.Error("expected db.system attribute")
			}
			if tt.table != "" && !hasTable {
				t.Error("expected db.sql.table attribute")
			}
		})
	}
}

func TestStartDBSpan_RecordsError(t *testing.T) {
	recorder := newSpanRecorder(t)

	_, endSpan := StartDBSpan(context.Background(), "ratings", DBOperationUpdate)
	endSpan(errors.New("version conflict"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestStartSpan(t *testing.T) {
	recorder := newSpanRecorder(t)

	ctx, endSpan := StartSpan(context.Background(), "calculate_composite_rankings")
	AddEvent(ctx, "signals_collected", attribute.Int("athletes", 8))
	SetAttributes(ctx, attribute.String("team_id", "team-1"))
	endSpan(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "calculate_composite_rankings" {
		t.Errorf("expected span name calculate_composite_rankings, got %q", span.Name())
	}
	if len(span.Events()) != 1 || span.Events()[0].Name != "signals_collected" {
		t.Errorf("expected signals_collected event, got %+v", span.Events())
	}
	found := false
	for _, attr := range span.Attributes() {
		if attr.Key == "team_id" && attr.Value.AsString() == "team-1" {
			found = true
		}
	}
	if !found {
		t.Error("expected team_id attribute on span")
	}
}
