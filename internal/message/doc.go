// Package message models chat messages and rewrites their PDF attachments.
//
// # Overview
//
// A ChatMessage is kept as raw JSON. Only two fields are interpreted:
// content and experimental_attachments. Everything else is preserved byte
// for byte through a rewrite.
//
// # Rewrite
//
// For each message, in order, the Rewriter walks the attachment list:
//
//   - application/pdf descriptors are uploaded using the form file with the
//     same name, and "\nAnalyze this PDF: <url>" is appended to content
//   - PDF descriptors with no matching file follow Policy.MissingFile
//     (skip or fail)
//   - other descriptors follow Policy.OtherKinds (drop or keep)
//
// Once a list is processed the experimental_attachments field is removed,
// or reduced to the kept descriptors. An empty list is left untouched.
//
// A failed upload aborts the whole rewrite. Rewriting already rewritten
// messages changes nothing.
package message
