package docrag

import "fmt"

// InputError marks a request-shaped upload failure that should surface as
// 4xx: an empty upload, a missing or unsupported extension, or an
// image-only upload. An HWP file without a configured converter is an
// UnsupportedTypeError instead.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return "docrag: invalid input: " + e.Reason }

// ParseError wraps an extraction failure: an error from a native format
// parser (C3), an unreadable text upload, an unreadable HWPX zip, or a
// failed run of the configured HWP converter.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("docrag: parsing %q: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// EmbeddingBackendError and EmbeddingShapeError (§7) are defined in the
// llm package, which owns the embedding backend call; callers match them
// with errors.As(&llm.EmbeddingBackendError{}) / errors.As(&llm.EmbeddingShapeError{}).
// GenerationError is likewise defined in the llm package.

// InsertError reports a failed durable-store transaction for a fragment,
// asset, or table body. The in-memory index is left unchanged (I3).
type InsertError struct {
	Stage string
	Err   error
}

func (e *InsertError) Error() string { return fmt.Sprintf("docrag: insert failed (%s): %v", e.Stage, e.Err) }
func (e *InsertError) Unwrap() error { return e.Err }

// IngestError wraps the first sub-failure of an ingestion with a tag
// identifying the stage that failed (for example persist, chunk,
// prose_embed, table_row_insert, image_asset_insert).
type IngestError struct {
	Stage string
	Err   error
}

func (e *IngestError) Error() string { return fmt.Sprintf("docrag: ingest failed at %s: %v", e.Stage, e.Err) }
func (e *IngestError) Unwrap() error { return e.Err }

// UnsupportedTypeError reports an upload extension/MIME the ingestion
// pipeline has no dispatch route for (§4.6 step 2), including HWP without
// a configured converter.
type UnsupportedTypeError struct {
	Ext string
}

func (e *UnsupportedTypeError) Error() string { return "docrag: unsupported type: " + e.Ext }
