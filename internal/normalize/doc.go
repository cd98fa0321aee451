// Package normalize converts inbound gateway requests into canonical JSON.
//
// # Overview
//
// Decode turns a request body into one of two variants:
//
//   - FormBody for multipart/form-data and application/x-www-form-urlencoded
//     (case-insensitive prefix match on Content-Type)
//   - JSONBody for everything else
//
// # Form Branch
//
// Scalar fields are copied into the output object. The messages field
// (default "[]") is parsed, its PDF attachments are rewritten by
// message.Rewriter, and it is written back as a JSON string. The output
// object holds only string values and its keys are sorted.
//
// # JSON Branch
//
// The body must be valid JSON. It is compacted and forwarded without any
// attachment processing.
//
// # Errors
//
// Decode failures, oversized bodies and a malformed messages field return
// ErrMalformedPayload. Rewrite and upload errors are returned unchanged.
// IsClientError separates request faults from collaborator faults.
package normalize
