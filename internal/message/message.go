// ABOUTME: Chat message model kept as raw JSON so unknown fields survive rewrites
// ABOUTME: Provides parsing of message arrays and typed access to content and attachments

package message

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Field names inside a chat message.
const (
	fieldContent     = "content"
	fieldAttachments = "experimental_attachments"
)

// PDFMediaType is the attachment content type offloaded to storage.
const PDFMediaType = "application/pdf"

// ErrMalformedMessage is returned when a message cannot be rewritten.
var ErrMalformedMessage = errors.New("malformed message")

// ChatMessage is one conversational turn as a raw JSON object.
// Fields the gateway does not interpret (role, id, ...) pass through unchanged.
type ChatMessage []byte

// Attachment is a client-side descriptor of a file associated with a message.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	URL         string `json:"url,omitempty"`

	raw string
}

// IsPDF reports whether the descriptor declares the PDF content type.
// The comparison is exact, as declared by the client.
func (a Attachment) IsPDF() bool {
	return a.ContentType == PDFMediaType
}

// Raw returns the descriptor's original JSON text.
func (a Attachment) Raw() string {
	return a.raw
}

// UploadedArtifact records one attachment stored during a request.
type UploadedArtifact struct {
	AttachmentName string
	MediaType      string
	Size           int
	URL            string
	MessageIndex   int
}

// ParseMessages decodes a JSON array of message objects.
func ParseMessages(data []byte) ([]ChatMessage, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: messages is not valid JSON", ErrMalformedMessage)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: messages is not an array", ErrMalformedMessage)
	}

	msgs := make([]ChatMessage, 0, len(root.Array()))
	var parseErr error
	root.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			parseErr = fmt.Errorf("%w: message %d is not an object", ErrMalformedMessage, len(msgs))
			return false
		}
		msgs = append(msgs, ChatMessage(value.Raw))
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return msgs, nil
}

// MarshalMessages joins messages back into a JSON array.
func MarshalMessages(msgs []ChatMessage) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, m := range msgs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(m)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// Content returns the message text. Absent or null content reads as "".
func (m ChatMessage) Content() (string, error) {
	c := gjson.GetBytes(m, fieldContent)
	switch c.Type {
	case gjson.Null:
		return "", nil
	case gjson.String:
		return c.Str, nil
	default:
		return "", fmt.Errorf("%w: content is not a string", ErrMalformedMessage)
	}
}

// Attachments returns the descriptors in source order.
// Absent or null attachments read as an empty list.
func (m ChatMessage) Attachments() ([]Attachment, error) {
	a := gjson.GetBytes(m, fieldAttachments)
	if a.Type == gjson.Null {
		return nil, nil
	}
	if !a.IsArray() {
		return nil, fmt.Errorf("%w: %s is not an array", ErrMalformedMessage, fieldAttachments)
	}

	var out []Attachment
	a.ForEach(func(_, value gjson.Result) bool {
		out = append(out, Attachment{
			Name:        value.Get("name").String(),
			ContentType: value.Get("contentType").String(),
			URL:         value.Get("url").String(),
			raw:         value.Raw,
		})
		return true
	})
	return out, nil
}
