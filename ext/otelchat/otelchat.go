// Package otelchat adds OpenTelemetry tracing to any chatcall.Provider.
// Spans carry the model and message/choice counts; message content and credentials
// are never recorded.
package otelchat

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/chatcall"
)

const (
	instrumentationName = "github.com/skosovsky/chatcall/ext/otelchat"
	spanName            = "chatcall.complete"

	attrModel        = attribute.Key("gen_ai.request.model")
	attrSystem       = attribute.Key("gen_ai.system")
	attrMessages     = attribute.Key("chatcall.messages")
	attrChoices      = attribute.Key("chatcall.choices")
	attrFinishReason = attribute.Key("gen_ai.response.finish_reason")
	attrKeyOverride  = attribute.Key("chatcall.api_key_override")
)

// Option configures the tracing decorator.
type Option func(*tracedProvider)

// WithTracerProvider sets the tracer provider. Default is otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *tracedProvider) {
		if tp != nil {
			p.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithSystem sets the gen_ai.system attribute (e.g. "openai", "anthropic").
func WithSystem(system string) Option {
	return func(p *tracedProvider) { p.system = system }
}

type tracedProvider struct {
	next   chatcall.Provider
	tracer trace.Tracer
	system string
}

// WrapProvider returns a Provider that runs every Complete call of p inside a
// client span. Panics if p is nil.
func WrapProvider(p chatcall.Provider, opts ...Option) chatcall.Provider {
	if p == nil {
		panic("otelchat: Provider must not be nil")
	}
	tp := &tracedProvider{next: p}
	for _, opt := range opts {
		opt(tp)
	}
	if tp.tracer == nil {
		tp.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return tp
}

// Complete implements chatcall.Provider.
func (p *tracedProvider) Complete(ctx context.Context, req *chatcall.Request) (*chatcall.Response, error) {
	attrs := []attribute.KeyValue{
		attrModel.String(req.Model()),
		attrMessages.Int(len(req.Messages)),
		attrKeyOverride.Bool(req.APIKey != ""),
	}
	if p.system != "" {
		attrs = append(attrs, attrSystem.String(p.system))
	}
	ctx, span := p.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	defer span.End()

	resp, err := p.next.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	n := 0
	if resp != nil {
		n = len(resp.Choices)
		if n > 0 && resp.Choices[0].FinishReason != "" {
			span.SetAttributes(attrFinishReason.String(resp.Choices[0].FinishReason))
		}
	}
	span.SetAttributes(attrChoices.Int(n))
	return resp, nil
}

// Compile-time check that the decorator implements chatcall.Provider.
var _ chatcall.Provider = (*tracedProvider)(nil)
