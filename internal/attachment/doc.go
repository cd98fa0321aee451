// Package attachment uploads request files to external storage.
//
// # Overview
//
// An Uploader takes one in-memory File and returns a URL the agent runtime
// can fetch later. HTTPUploader is the production implementation: it posts a
// multipart body with a single part named "file" and expects a JSON reply
// of the form {"url": "..."}.
//
// # Errors
//
//   - ErrEmptyFile: the file has no content, nothing is sent
//   - ErrUploadFailed: matched by every *UploadError (transport failure,
//     non-2xx status, undecodable reply or empty url)
//
// Uploads are never retried.
package attachment
