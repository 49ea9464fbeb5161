// Package artifact defines the immutable output record produced by one
// model call. Artifacts are content-hashed and versioned so a repaired
// output can supersede the original without losing it.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact is an immutable, versioned model output.
type Artifact struct {
	ID        string            `json:"id"`
	Version   int               `json:"version"`
	Content   string            `json:"content"`
	Adapter   string            `json:"adapter"`
	Model     string            `json:"model"`
	Prompt    string            `json:"prompt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Hash      string            `json:"hash"`
}

// New creates an Artifact with a fresh id and computed hash.
func New(content, adapter, model, prompt string) *Artifact {
	a := &Artifact{
		ID:        uuid.NewString(),
		Version:   1,
		Content:   content,
		Adapter:   adapter,
		Model:     model,
		Prompt:    prompt,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}
	a.Hash = a.computeHash()
	return a
}

// NewVersion creates the next version of the artifact with new content.
// The id is kept so the lineage of a repaired output stays traceable.
func (a *Artifact) NewVersion(content string) *Artifact {
	next := &Artifact{
		ID:        a.ID,
		Version:   a.Version + 1,
		Content:   content,
		Adapter:   a.Adapter,
		Model:     a.Model,
		Prompt:    a.Prompt,
		Metadata:  copyMetadata(a.Metadata),
		CreatedAt: time.Now().UTC(),
	}
	next.Hash = next.computeHash()
	return next
}

// WithMetadata returns a copy of the artifact with one metadata entry
// added. The receiver is not modified.
func (a *Artifact) WithMetadata(key, value string) *Artifact {
	next := &Artifact{
		ID:        a.ID,
		Version:   a.Version,
		Content:   a.Content,
		Adapter:   a.Adapter,
		Model:     a.Model,
		Prompt:    a.Prompt,
		Metadata:  copyMetadata(a.Metadata),
		CreatedAt: a.CreatedAt,
		Hash:      a.Hash,
	}
	next.Metadata[key] = value
	return next
}

// Summary returns the first line of the content, shortened to at most n
// runes for log and CLI display.
func (a *Artifact) Summary(n int) string {
	line := a.Content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	runes := []rune(line)
	if n > 0 && len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return line
}

func (a *Artifact) computeHash() string {
	h := sha256.New()
	h.Write([]byte(a.Content))
	h.Write([]byte(a.Adapter))
	h.Write([]byte(a.Model))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
