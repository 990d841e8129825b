package pipeline

import (
	"errors"
	"fmt"
)

// ParseError is terminal for one attempt: the file is unreadable, corrupt,
// or produced no text.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse %s: empty extraction", e.Path)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ChunkingError signals a chunker bug: non-empty text yielded zero chunks.
type ChunkingError struct {
	Path string
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunk %s: non-empty text produced zero chunks", e.Path)
}

// EmbeddingError is terminal for one attempt: the external embedding call or
// the chunk persist failed. The prior chunk set is left intact.
type EmbeddingError struct {
	Path string
	Err  error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed %s: %v", e.Path, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IsFileError reports whether err is scoped to one file's attempt. Anything
// else that escapes Process is a repository-class failure and should halt
// claiming instead of being recorded against a file.
func IsFileError(err error) bool {
	var pe *ParseError
	var ce *ChunkingError
	var ee *EmbeddingError
	return errors.As(err, &pe) || errors.As(err, &ce) || errors.As(err, &ee)
}
