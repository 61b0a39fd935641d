package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/ranya-voice/internal/observability"
	"github.com/harun/ranya-voice/internal/tracing"
	"github.com/harun/ranya-voice/pkg/docstore"
	"github.com/harun/ranya-voice/pkg/toolexecutor"
	"github.com/harun/ranya-voice/pkg/transport"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Tool names as exposed to the language model.
const (
	ToolGetWeather       = "get_weather"
	ToolSendNotification = "send_notification"
	ToolSearchDocuments  = "search_documents"
)

// MessageTypeSearchResults tags search results forwarded to the frontend.
const MessageTypeSearchResults = "search_results"

// FrontendMessage is a structured payload for the frontend. It is encoded as a
// JSON object.
type FrontendMessage map[string]interface{}

// DocumentSearcher finds documents matching a query.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]docstore.Document, error)
}

// Options configures an Assistant.
type Options struct {
	// Publisher delivers messages to the frontend. Nil leaves the assistant
	// detached: tools still answer, but nothing is sent.
	Publisher transport.Publisher
	// Searcher backs search_documents. Optional.
	Searcher    DocumentSearcher
	SearchLimit int
	Logger      zerolog.Logger
}

// Assistant is the tool surface the language model calls into.
type Assistant struct {
	publisher   transport.Publisher
	searcher    DocumentSearcher
	searchLimit int
	logger      zerolog.Logger
}

// New creates an assistant bound to the given publisher.
func New(opts Options) *Assistant {
	observability.EnsureRegistered()

	limit := opts.SearchLimit
	if limit <= 0 {
		limit = 5
	}

	return &Assistant{
		publisher:   opts.Publisher,
		searcher:    opts.Searcher,
		searchLimit: limit,
		logger:      opts.Logger.With().Str("component", "assistant").Logger(),
	}
}

// Attached reports whether a publisher was supplied.
func (a *Assistant) Attached() bool {
	return a.publisher != nil
}

// GetWeather returns a weather report for location.
func (a *Assistant) GetWeather(ctx context.Context, location string) (string, error) {
	return fmt.Sprintf("Weather in %s: 72°F, sunny", location), nil
}

// SendNotification publishes message to userID, or to everyone when userID is
// empty. Publish failures are returned to the caller.
func (a *Assistant) SendNotification(ctx context.Context, message, userID string) (string, error) {
	confirmation := fmt.Sprintf("Notification sent: %s", message)

	if !a.Attached() {
		a.skip(ctx, ToolSendNotification, transport.TopicNotification)
		return confirmation, nil
	}

	opts := transport.PublishOptions{Topic: transport.TopicNotification}
	if userID != "" {
		opts.Destinations = []string{userID}
	}

	ctx, span := tracing.StartSpan(ctx, "ranya-voice/assistant", "assistant.send_notification",
		attribute.String("notification.user_id", userID),
		attribute.Bool("notification.broadcast", opts.Broadcast()))

	err := a.publisher.Publish(ctx, []byte(message), opts)
	tracing.EndSpan(span, err)
	a.audit(ctx, opts.Topic, err)

	if err != nil {
		return "", fmt.Errorf("failed to send notification: %w", err)
	}

	a.logger.Debug().
		Str("user_id", userID).
		Int("bytes", len(message)).
		Msg("Notification published")

	return confirmation, nil
}

// SearchDocuments looks up query and forwards the results to the frontend.
// Forwarding failures are logged; the results are always returned.
func (a *Assistant) SearchDocuments(ctx context.Context, query string) (string, error) {
	results := fmt.Sprintf("Found documents matching '%s'", query)

	if a.searcher != nil {
		docs, err := a.searcher.Search(ctx, query, a.searchLimit)
		if err != nil {
			a.logger.Warn().Err(err).Str("query", query).Msg("Document search failed")
		} else if len(docs) > 0 {
			titles := make([]string, 0, len(docs))
			for _, d := range docs {
				titles = append(titles, d.Title)
			}
			results += ": " + strings.Join(titles, ", ")
		}
	}

	if err := a.sendToFrontend(ctx, ToolSearchDocuments, FrontendMessage{
		"type":    MessageTypeSearchResults,
		"query":   query,
		"results": results,
	}); err != nil {
		a.logger.Warn().Err(err).Str("query", query).Msg("Failed to forward search results")
	}

	return results, nil
}

// sendToFrontend JSON-encodes payload and broadcasts it reliably.
func (a *Assistant) sendToFrontend(ctx context.Context, tool string, payload FrontendMessage) error {
	if !a.Attached() {
		a.skip(ctx, tool, transport.TopicFrontend)
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode frontend message: %w", err)
	}

	ctx, span := tracing.StartSpan(ctx, "ranya-voice/assistant", "assistant.send_to_frontend",
		attribute.String("frontend.tool", tool),
		attribute.Int("frontend.bytes", len(data)))

	opts := transport.PublishOptions{Reliable: true, Topic: transport.TopicFrontend}
	err = a.publisher.Publish(ctx, data, opts)
	tracing.EndSpan(span, err)
	a.audit(ctx, opts.Topic, err)

	if err != nil {
		return fmt.Errorf("failed to publish frontend message: %w", err)
	}
	return nil
}

func (a *Assistant) skip(ctx context.Context, tool, topic string) {
	a.logger.Warn().
		Str("tool", tool).
		Str("topic", topic).
		Msg("No transport attached; frontend message dropped")
	observability.RecordPublishSkipped(tool)
	observability.RecordPublishAudit(ctx, topic, tracing.GetJobID(ctx), "skipped", map[string]interface{}{
		"tool":         tool,
		"requested_by": toolexecutor.Participant(ctx),
	})
}

func (a *Assistant) audit(ctx context.Context, topic string, err error) {
	status := "success"
	meta := map[string]interface{}{"requested_by": toolexecutor.Participant(ctx)}
	if err != nil {
		status = "failure"
		meta["error"] = err.Error()
	}
	observability.RecordPublishAudit(ctx, topic, tracing.GetJobID(ctx), status, meta)
}
