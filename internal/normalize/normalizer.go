// ABOUTME: Turns an inbound request into the canonical JSON payload for the runtime
// ABOUTME: Form submissions get their PDF attachments rewritten; JSON bodies pass through compacted

package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/copilot-gateway/internal/attachment"
	"github.com/2389/copilot-gateway/internal/message"
)

// Branch names the path a request took through the normalizer.
type Branch string

const (
	BranchForm Branch = "form"
	BranchJSON Branch = "json"
)

const messagesField = "messages"

// Payload is the canonical request handed to the dispatcher.
type Payload struct {
	Body    json.RawMessage   // the JSON text forwarded downstream
	Branch  Branch
	Uploads []message.UploadedArtifact
	Skipped int

	// MessageCount is the number of messages seen on the form branch.
	MessageCount int
}

// Normalizer decodes inbound requests and rewrites their attachments.
type Normalizer struct {
	rewriter     *message.Rewriter
	maxBodyBytes int64
	logger       *slog.Logger
}

// New creates a normalizer. maxBodyBytes <= 0 means no cap.
func New(rewriter *message.Rewriter, maxBodyBytes int64, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{rewriter: rewriter, maxBodyBytes: maxBodyBytes, logger: logger}
}

// Normalize consumes in.Body and returns the canonical payload.
// Errors are ErrMalformedPayload, message errors, or upload errors; no partial payload is returned.
func (n *Normalizer) Normalize(ctx context.Context, in *Inbound) (*Payload, error) {
	body, err := Decode(in, n.maxBodyBytes)
	if err != nil {
		return nil, err
	}

	switch b := body.(type) {
	case FormBody:
		return n.normalizeForm(ctx, b)
	case JSONBody:
		return normalizeJSON(b)
	default:
		return nil, fmt.Errorf("%w: unsupported body %T", ErrMalformedPayload, body)
	}
}

func normalizeJSON(b JSONBody) (*Payload, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b.Raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &Payload{
		Body:   buf.Bytes(),
		Branch: BranchJSON,
	}, nil
}

func (n *Normalizer) normalizeForm(ctx context.Context, b FormBody) (*Payload, error) {
	fields := make(map[string]string, len(b.Values)+1)
	for k, v := range b.Values {
		fields[k] = v
	}

	rawMessages, ok := fields[messagesField]
	if !ok {
		rawMessages = "[]"
	}
	msgs, err := message.ParseMessages([]byte(rawMessages))
	if err != nil {
		return nil, fmt.Errorf("%w: %s field: %v", ErrMalformedPayload, messagesField, err)
	}

	res, err := n.rewriter.Rewrite(ctx, msgs, b.Files)
	if err != nil {
		return nil, err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, message.MarshalMessages(res.Messages)); err != nil {
		return nil, fmt.Errorf("%w: re-encoding messages: %v", ErrMalformedPayload, err)
	}
	fields[messagesField] = compact.String()

	out, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}

	n.logger.Debug("normalized form request",
		"fields", len(fields),
		"files", len(b.Files),
		"messages", len(msgs),
		"uploaded", len(res.Uploads),
		"skipped", res.Skipped,
	)

	return &Payload{
		Body:         out,
		Branch:       BranchForm,
		Uploads:      res.Uploads,
		Skipped:      res.Skipped,
		MessageCount: len(msgs),
	}, nil
}

// encodeFields writes fields as a JSON object of strings with sorted keys.
func encodeFields(fields map[string]string) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// IsClientError reports whether err was caused by the request itself rather
// than by a collaborator.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, message.ErrMalformedMessage) ||
		errors.Is(err, message.ErrMissingFile) ||
		errors.Is(err, attachment.ErrEmptyFile)
}
