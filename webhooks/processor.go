package webhooks

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/zeebo/blake3"

	"github.com/goliatone/go-tendlc/core"
)

type EventIDExtractor func(req core.InboundRequest) string

// Processor accepts webhook deliveries: verify, parse, then hand the raw
// payload to the durable queue. Handling happens later in a worker.
type Processor struct {
	Verifier  Verifier
	Enqueuer  core.JobEnqueuer
	ExtractID EventIDExtractor
	Logger    core.Logger
}

func NewProcessor(verifier Verifier, enqueuer core.JobEnqueuer) *Processor {
	return &Processor{
		Verifier:  verifier,
		Enqueuer:  enqueuer,
		ExtractID: DefaultEventIDExtractor,
		Logger:    glog.Nop(),
	}
}

func (p *Processor) Accept(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Enqueuer == nil {
		return core.InboundResult{StatusCode: http.StatusInternalServerError},
			processorError(fmt.Errorf("webhooks: processor requires a job enqueuer"), goerrors.CategoryInternal, http.StatusInternalServerError)
	}
	surface := strings.TrimSpace(req.Surface)

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			return core.InboundResult{
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"surface":  surface,
					"rejected": true,
				},
			}, err
		}
	}

	event, err := ParseEvent(req.Body)
	if errors.Is(err, ErrUnknownEventType) {
		p.logger().Warn("webhook event type not handled", "surface", surface, "error", err.Error())
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusAccepted,
			Metadata: map[string]any{
				"surface": surface,
				"ignored": true,
			},
		}, nil
	}
	if err != nil {
		p.logger().Warn("webhook payload rejected", "surface", surface, "error", err.Error())
		return core.InboundResult{
				StatusCode: http.StatusBadRequest,
				Metadata:   map[string]any{"surface": surface},
			},
			processorError(err, goerrors.CategoryBadInput, http.StatusBadRequest)
	}

	extractor := p.ExtractID
	if extractor == nil {
		extractor = DefaultEventIDExtractor
	}
	eventID := extractor(req)
	err = p.Enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID: core.JobIDWebhookProcess,
		Parameters: map[string]any{
			core.JobParamEventID: eventID,
			core.JobParamPayload: string(req.Body),
		},
		IdempotencyKey: "webhook:" + eventID,
		DedupPolicy:    core.DedupPolicyDrop,
	})
	if err != nil {
		p.logger().Error("webhook enqueue failed",
			"surface", surface,
			"event_id", eventID,
			"event_type", string(event.Type()),
			"error", err.Error(),
		)
		return core.InboundResult{StatusCode: http.StatusInternalServerError},
			processorError(err, goerrors.CategoryInternal, http.StatusInternalServerError)
	}

	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusAccepted,
		Metadata: map[string]any{
			"surface":    surface,
			"event_id":   eventID,
			"event_type": string(event.Type()),
		},
	}, nil
}

// DefaultEventIDExtractor prefers the payload id, then the X-Event-Id header,
// then a digest of the signed "timestamp|body" message. A redelivery of the
// same signed request shares an id; two status changes with identical bodies
// sent at different times do not.
func DefaultEventIDExtractor(req core.InboundRequest) string {
	if id := PayloadEventID(req.Body); id != "" {
		return id
	}
	if id := headerValue(req.Headers, "x-event-id"); id != "" {
		return id
	}
	hasher := blake3.New()
	_, _ = hasher.Write([]byte(headerValue(req.Headers, DefaultTimestampHeader)))
	_, _ = hasher.Write([]byte{'|'})
	_, _ = hasher.Write(req.Body)
	return "blake3:" + hex.EncodeToString(hasher.Sum(nil))
}

func processorError(err error, category goerrors.Category, code int) error {
	textCode := core.ServiceErrorInternal
	if category == goerrors.CategoryBadInput {
		textCode = core.ServiceErrorBadInput
	}
	return goerrors.Wrap(err, category, err.Error()).
		WithCode(code).
		WithTextCode(textCode)
}

func (p *Processor) logger() core.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return glog.Nop()
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
