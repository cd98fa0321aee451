// ABOUTME: Decodes an inbound body into a JSON or form variant
// ABOUTME: Multipart and URL-encoded forms become scalar values plus in-memory files

package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/2389/copilot-gateway/internal/attachment"
)

// ErrMalformedPayload is returned when the body cannot be decoded.
var ErrMalformedPayload = errors.New("malformed payload")

const (
	mediaMultipart  = "multipart/form-data"
	mediaURLEncoded = "application/x-www-form-urlencoded"
)

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to temporary files.
const multipartMemory = 8 << 20

// Body is the decoded request body: either a JSONBody or a FormBody.
type Body interface {
	isBody()
}

// JSONBody is a body that was not a form submission.
type JSONBody struct {
	Raw json.RawMessage
}

// FormBody is a decoded form submission.
// Scalar fields keep the last value for a key, files keep the first.
type FormBody struct {
	Values map[string]string
	Files  map[string]*attachment.File
}

func (JSONBody) isBody() {}
func (FormBody) isBody() {}

// IsForm reports whether the content type selects the form branch.
// The match is a case-insensitive prefix match.
func IsForm(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, mediaMultipart) || strings.HasPrefix(ct, mediaURLEncoded)
}

// Decode reads the whole body of in, at most maxBytes of it when maxBytes > 0.
func Decode(in *Inbound, maxBytes int64) (Body, error) {
	body := in.Body
	if body == nil {
		body = strings.NewReader("")
	}
	if maxBytes > 0 {
		body = &limitedReader{r: io.LimitReader(body, maxBytes+1), limit: maxBytes}
	}

	ct := in.ContentType()
	if !IsForm(ct) {
		return decodeJSON(body)
	}
	if strings.HasPrefix(ct, mediaMultipart) {
		return decodeMultipart(body, in.Header.Get("Content-Type"))
	}
	return decodeURLEncoded(body)
}

func decodeJSON(r io.Reader) (Body, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrMalformedPayload, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformedPayload)
	}
	return JSONBody{Raw: data}, nil
}

func decodeURLEncoded(r io.Reader) (Body, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrMalformedPayload, err)
	}
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing form: %v", ErrMalformedPayload, err)
	}

	form := FormBody{Values: lastValues(values), Files: map[string]*attachment.File{}}
	return form, nil
}

func decodeMultipart(r io.Reader, contentType string) (Body, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing content type: %v", ErrMalformedPayload, err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("%w: multipart body has no boundary", ErrMalformedPayload)
	}

	mf, err := multipart.NewReader(r, boundary).ReadForm(multipartMemory)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing multipart form: %w", ErrMalformedPayload, err)
	}
	defer mf.RemoveAll()

	form := FormBody{
		Values: lastValues(mf.Value),
		Files:  make(map[string]*attachment.File, len(mf.File)),
	}
	for key, headers := range mf.File {
		if len(headers) == 0 {
			continue
		}
		f, err := readFile(headers[0])
		if err != nil {
			return nil, fmt.Errorf("%w: reading file %q: %v", ErrMalformedPayload, key, err)
		}
		form.Files[key] = f
	}

	return form, nil
}

func readFile(fh *multipart.FileHeader) (*attachment.File, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return &attachment.File{
		Name:      fh.Filename,
		MediaType: fh.Header.Get("Content-Type"),
		Data:      data,
	}, nil
}

func lastValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[len(v)-1]
		}
	}
	return out
}

// ErrBodyTooLarge is reported, wrapped in ErrMalformedPayload, when a body
// exceeds the configured cap.
var ErrBodyTooLarge = errors.New("request body too large")

type limitedReader struct {
	r     io.Reader
	limit int64
	read  int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		return n, ErrBodyTooLarge
	}
	return n, err
}
