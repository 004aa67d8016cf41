// Package materialize stores the attachments of accepted messages and pairs
// each message with its media references.
package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/infra/storage"
	"github.com/vietddude/botrelay/internal/relay/aggregate"
	"github.com/vietddude/botrelay/internal/relay/metrics"
)

// Media type of a photo the bot did not tag with a sub-type.
const mediaTypeImage = "image"

// Materializer uploads attachments to a MediaStore. All or nothing: when an
// upload fails, media already stored for the same call is removed.
type Materializer struct {
	store storage.MediaStore
	log   *slog.Logger
}

// New creates a materializer.
func New(store storage.MediaStore, log *slog.Logger) *Materializer {
	if log == nil {
		log = slog.Default()
	}
	return &Materializer{store: store, log: log}
}

// Materialize implements dispatch.Materializer.
func (m *Materializer) Materialize(ctx context.Context, q domain.Query, msgs []domain.ParsedMessage) ([]aggregate.Input, error) {
	inputs := make([]aggregate.Input, 0, len(msgs))
	var uploaded []string

	for _, msg := range msgs {
		in := aggregate.Input{Message: msg}
		for _, att := range msg.Attachments {
			if len(att.Data) == 0 {
				continue
			}
			url, err := m.store.Upload(ctx, att.Data, q.CorrelationKey, fileName(att))
			if err != nil {
				m.Rollback(ctx, uploaded)
				return nil, fmt.Errorf("upload attachment %s: %w", att.ID, err)
			}
			uploaded = append(uploaded, url)
			metrics.MediaFiles.WithLabelValues("stored").Inc()

			in.Media = append(in.Media, domain.MediaRef{
				URL:         url,
				Type:        mediaType(msg, att),
				TextContext: textContext(msg.RawText),
			})
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// Rollback removes uploaded media, logging failures.
func (m *Materializer) Rollback(ctx context.Context, urls []string) {
	ctx = context.WithoutCancel(ctx)
	for _, u := range urls {
		if err := m.store.Remove(ctx, u); err != nil {
			m.log.Warn("Failed to remove media during rollback", "url", u, "error", err)
			continue
		}
		metrics.MediaFiles.WithLabelValues("rolled_back").Inc()
	}
}

// mediaType is the tagged photo sub-type, "image" for an untagged photo, or
// the attachment kind.
func mediaType(msg domain.ParsedMessage, att domain.Attachment) string {
	if att.Kind != domain.AttachmentPhoto {
		return string(att.Kind)
	}
	if t := msg.Fields["photo_type"]; t != "" {
		return t
	}
	return mediaTypeImage
}

// textContext is the first line of the raw reply, usually the bot's header.
func textContext(raw string) string {
	line, _, _ := strings.Cut(raw, "\n")
	return strings.TrimSpace(line)
}

func fileName(att domain.Attachment) string {
	if att.FileName != "" {
		return att.FileName
	}
	ext := ".bin"
	if att.Kind == domain.AttachmentPhoto {
		ext = ".jpg"
	}
	if att.MIMEType != "" {
		if exts, err := mime.ExtensionsByType(att.MIMEType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return att.ID + ext
}
