package model

import (
	"fmt"
	"time"
)

// ChunkDimension is the fixed embedding vector length used throughout the
// pipeline (§3: D=768).
const ChunkDimension = 768

// Chunk is a logical child of an Article, identified by (article id, index).
// The denormalized metadata lets the chunk index (C1) and the retrieval
// service (C11) filter on article attributes without a join.
type Chunk struct {
	ArticleID string
	Index     int // starting at 0

	Text      string
	Embedding []float32 // length ChunkDimension

	ArticleDate       time.Time
	Title             string
	Journal           string
	MeshNames         []string
	MeshIDs           []string
	Chemicals         []string
	Keywords          []string
	AuthorNames       []string
	AuthorAffiliations []string
	SourceIndex       string // which chunk index ("complete"/"sentence") produced this chunk
}

// ID renders the chunk document id as "{articleId}_{index}" (§8 P5).
func (c Chunk) ID() string {
	return fmt.Sprintf("%s_%d", c.ArticleID, c.Index)
}
