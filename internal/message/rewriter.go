// ABOUTME: Rewrites chat messages so PDF attachments become uploaded URLs in the content
// ABOUTME: Uploads each referenced file, appends the URL line, and strips the attachment list

package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/2389/copilot-gateway/internal/attachment"
)

// ErrMissingFile is returned under MissingFileFail when a PDF descriptor has no matching form file.
var ErrMissingFile = errors.New("attachment file missing from request")

// AnalyzePrefix precedes the uploaded URL appended to a message's content.
const AnalyzePrefix = "\nAnalyze this PDF: "

// MissingFilePolicy decides what happens to a PDF descriptor with no matching file.
type MissingFilePolicy string

// OtherKindsPolicy decides what happens to descriptors that are not PDFs.
type OtherKindsPolicy string

const (
	MissingFileSkip MissingFilePolicy = "skip"
	MissingFileFail MissingFilePolicy = "fail"

	OtherKindsDrop OtherKindsPolicy = "drop"
	OtherKindsKeep OtherKindsPolicy = "keep"
)

// Policy holds the rewrite decisions that are configurable per deployment.
// The zero value skips missing files and drops other kinds.
type Policy struct {
	MissingFile MissingFilePolicy
	OtherKinds  OtherKindsPolicy
}

// onMissingFile is the only place a missing PDF file is decided.
// A nil return means the descriptor is skipped.
func (p Policy) onMissingFile(att Attachment) error {
	if p.MissingFile == MissingFileFail {
		return fmt.Errorf("%w: %q", ErrMissingFile, att.Name)
	}
	return nil
}

func (p Policy) keepOtherKinds() bool {
	return p.OtherKinds == OtherKindsKeep
}

// Result is the outcome of a successful rewrite.
type Result struct {
	Messages []ChatMessage
	Uploads  []UploadedArtifact
	Skipped  int
}

// Rewriter turns PDF attachments into URL references using an Uploader.
type Rewriter struct {
	uploader attachment.Uploader
	policy   Policy
	logger   *slog.Logger
}

// NewRewriter creates a rewriter. A nil logger uses slog.Default.
func NewRewriter(uploader attachment.Uploader, policy Policy, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{uploader: uploader, policy: policy, logger: logger}
}

// Rewrite processes messages in order and returns new messages; the input is not modified.
// Any upload failure aborts the whole rewrite and no partial result is returned.
// Files are looked up by the descriptor's name.
func (r *Rewriter) Rewrite(ctx context.Context, msgs []ChatMessage, files map[string]*attachment.File) (*Result, error) {
	res := &Result{Messages: make([]ChatMessage, len(msgs))}

	for i, msg := range msgs {
		out, err := r.rewriteMessage(ctx, i, msg, files, res)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		res.Messages[i] = out
	}

	return res, nil
}

func (r *Rewriter) rewriteMessage(ctx context.Context, idx int, msg ChatMessage, files map[string]*attachment.File, res *Result) (ChatMessage, error) {
	atts, err := msg.Attachments()
	if err != nil {
		return nil, err
	}
	if len(atts) == 0 {
		return msg, nil
	}

	var content string
	var urls []string
	var kept []string
	for _, att := range atts {
		if !att.IsPDF() {
			if r.policy.keepOtherKinds() {
				kept = append(kept, att.Raw())
				continue
			}
			r.logger.Warn("dropping non-PDF attachment",
				"message", idx,
				"name", att.Name,
				"content_type", att.ContentType,
			)
			continue
		}

		f, ok := files[att.Name]
		if !ok {
			if err := r.policy.onMissingFile(att); err != nil {
				return nil, err
			}
			r.logger.Debug("skipping PDF attachment without file", "message", idx, "name", att.Name)
			res.Skipped++
			continue
		}

		// Content must be a string before the first upload.
		if len(urls) == 0 {
			if content, err = msg.Content(); err != nil {
				return nil, err
			}
		}

		url, err := r.uploader.Upload(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("uploading %q: %w", att.Name, err)
		}
		urls = append(urls, url)
		res.Uploads = append(res.Uploads, UploadedArtifact{
			AttachmentName: att.Name,
			MediaType:      f.MediaType,
			Size:           f.Size(),
			URL:            url,
			MessageIndex:   idx,
		})
	}

	out := []byte(msg)
	if len(urls) > 0 {
		var b strings.Builder
		b.WriteString(content)
		for _, u := range urls {
			b.WriteString(AnalyzePrefix)
			b.WriteString(u)
		}
		out, err = sjson.SetBytes(out, fieldContent, b.String())
		if err != nil {
			return nil, fmt.Errorf("setting content: %w", err)
		}
	}

	if len(kept) > 0 {
		out, err = sjson.SetRawBytes(out, fieldAttachments, []byte("["+strings.Join(kept, ",")+"]"))
	} else {
		out, err = sjson.DeleteBytes(out, fieldAttachments)
	}
	if err != nil {
		return nil, fmt.Errorf("updating %s: %w", fieldAttachments, err)
	}

	return ChatMessage(out), nil
}
