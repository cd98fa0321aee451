// ABOUTME: Uploads attachment files to the external storage endpoint
// ABOUTME: Sends one multipart part named "file" and returns the URL from the JSON reply

package attachment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Errors returned by uploaders.
var (
	// ErrEmptyFile is returned before any network call when the file has no content.
	ErrEmptyFile = errors.New("attachment file is empty")

	// ErrUploadFailed matches every *UploadError via errors.Is.
	ErrUploadFailed = errors.New("attachment upload failed")
)

const defaultMediaType = "application/octet-stream"

// maxPreview caps the response body kept on an UploadError.
const maxPreview = 512

// File is one uploaded form file held in memory for the duration of a request.
type File struct {
	Name      string // filename from the form part
	MediaType string // Content-Type of the form part
	Data      []byte
}

// Size returns the number of bytes in the file.
func (f *File) Size() int {
	return len(f.Data)
}

// Uploader stores a file and returns a retrievable URL for it.
type Uploader interface {
	Upload(ctx context.Context, f *File) (string, error)
}

// UploadError describes a failed upload. StatusCode is zero when the endpoint
// never answered.
type UploadError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("upload endpoint returned status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("upload endpoint returned status %d", e.StatusCode)
	case e.Err != nil:
		return "upload request: " + e.Err.Error()
	default:
		return ErrUploadFailed.Error()
	}
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Is reports ErrUploadFailed as a match so callers need not know the concrete type.
func (e *UploadError) Is(target error) bool {
	return target == ErrUploadFailed
}

// OAuthConfig holds client-credentials settings used to authorize uploads.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// HTTPConfig configures an HTTPUploader.
type HTTPConfig struct {
	Endpoint    string
	BearerToken string
	OAuth       *OAuthConfig
	Timeout     time.Duration // zero means no client-side deadline
	Logger      *slog.Logger
}

// HTTPUploader posts files to a storage endpoint that answers {"url": "..."}.
type HTTPUploader struct {
	endpoint    string
	bearerToken string
	client      *http.Client
	logger      *slog.Logger
}

// NewHTTPUploader creates an uploader for the given endpoint.
// When OAuth is set, requests carry a client-credentials access token and
// BearerToken is ignored.
func NewHTTPUploader(cfg HTTPConfig) *HTTPUploader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := &http.Client{Timeout: cfg.Timeout}
	bearer := cfg.BearerToken
	if cfg.OAuth != nil {
		cc := &clientcredentials.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}
		client = cc.Client(context.Background())
		client.Timeout = cfg.Timeout
		bearer = ""
	}

	return &HTTPUploader{
		endpoint:    cfg.Endpoint,
		bearerToken: bearer,
		client:      client,
		logger:      logger,
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload sends f as a single multipart part and returns the stored URL.
// There are no retries; any failure is reported as an *UploadError.
func (u *HTTPUploader) Upload(ctx context.Context, f *File) (string, error) {
	if f == nil || len(f.Data) == 0 {
		return "", ErrEmptyFile
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreatePart(filePartHeader(f))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", fmt.Errorf("write file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if u.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+u.bearerToken)
	}

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		return "", &UploadError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UploadError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UploadError{StatusCode: resp.StatusCode, Body: preview(respBody)}
	}

	var result uploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &UploadError{Body: preview(respBody), Err: fmt.Errorf("decode upload response: %w", err)}
	}
	if result.URL == "" {
		return "", &UploadError{Body: preview(respBody), Err: errors.New("upload response has no url")}
	}

	u.logger.Debug("attachment uploaded",
		"name", f.Name,
		"size", len(f.Data),
		"url", result.URL,
		"duration", time.Since(start),
	)

	return result.URL, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func filePartHeader(f *File) textproto.MIMEHeader {
	mediaType := f.MediaType
	if mediaType == "" {
		mediaType = defaultMediaType
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", mediaType)
	return h
}

func preview(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxPreview {
		s = s[:maxPreview] + "..."
	}
	return s
}
