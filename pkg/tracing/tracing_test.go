package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
)

func TestInitTracerDisabled(t *testing.T) {
	tracer, closer, err := InitTracer(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if tracer == nil || closer == nil {
		t.Fatal("expected tracer and closer")
	}
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestFinishTagsErrors(t *testing.T) {
	mt := mocktracer.New()
	prev := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(mt)
	defer opentracing.SetGlobalTracer(prev)

	span, ctx := StartSpan(context.Background(), "parent", nil)
	child, _ := StartSpan(ctx, "child", opentracing.Tags{"symbol": "BTCUSDT"})
	Finish(child, errors.New("rejected"))
	Finish(span, nil)

	finished := mt.FinishedSpans()
	if len(finished) != 2 {
		t.Fatalf("got %d spans", len(finished))
	}
	c := finished[0]
	if c.OperationName != "child" || c.Tag("error") != true || c.Tag("symbol") != "BTCUSDT" {
		t.Fatalf("child span tags = %v", c.Tags())
	}
	if c.ParentID != finished[1].SpanContext.SpanID {
		t.Fatal("child not linked to parent")
	}
	if finished[1].Tag("error") != nil {
		t.Fatal("parent should not be marked failed")
	}
}
