package domain

import "errors"

var (
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrEmptyQuery signals a blank query string.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrUnsupportedFileType signals a document format without a parser.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrRateLimited signals a per-user rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingCountMismatch signals the provider returned a different
	// number of vectors than input texts.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
	// ErrGenerationProviderError signals a generation provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrMalformedModelOutput signals an LLM response that could not be
	// parsed into the expected structure. Never retried against the same
	// prompt; resolved by the caller's fail-open default.
	ErrMalformedModelOutput = errors.New("malformed model output")
	// ErrRetrievalFailed signals that retrieval and context building failed
	// entirely (e.g. vector store unreachable). Surfaced to the caller so it
	// can present a clear failure instead of an ungrounded answer.
	ErrRetrievalFailed = errors.New("retrieval failed")
)
