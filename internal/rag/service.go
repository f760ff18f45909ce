// Package rag is the RAG Service (C11, Stage R): a process-scoped HTTP
// service answering document-specific and corpus-specific questions over
// the indexed chunk and cluster stores, backed by C1 for retrieval and C12
// for intent parsing and answer synthesis (§4.11).
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/achouhan93/clusterchat-go/internal/config"
	"github.com/achouhan93/clusterchat-go/internal/docmap"
	"github.com/achouhan93/clusterchat-go/internal/embedding"
	"github.com/achouhan93/clusterchat-go/internal/llmgateway"
	"github.com/achouhan93/clusterchat-go/internal/model"
	"github.com/achouhan93/clusterchat-go/internal/ragcache"
	"github.com/achouhan93/clusterchat-go/internal/store"
)

const (
	// QuestionDocumentSpecific and QuestionCorpusSpecific are the two §4.11
	// question types the /ask endpoint accepts.
	QuestionDocumentSpecific = "document-specific"
	QuestionCorpusSpecific   = "corpus-specific"

	// maxSourceIDs is the §4.11 "up to five unique document ids" cap on a
	// document-specific answer's sources.
	maxSourceIDs = 5

	// contextSafetyMargin is the flat 100-token buffer §4.11's context-budget
	// formula subtracts alongside the question and prompt-template token
	// counts.
	contextSafetyMargin = 100

	// answerPromptTemplateTokens approximates the fixed overhead of the
	// answer prompt template itself (§4.11: "|tokens(prompt_template)|"),
	// since the template text is constant across calls.
	answerPromptTemplateTokens = 120
)

// Embedder embeds free text into the chunk index's vector space (C6's model,
// reused unmodified per §4.11: "same model as C6").
type Embedder interface {
	EmbedText(ctx context.Context, inputs []string) ([][]float32, error)
}

// embeddingEndpoint adapts internal/embedding.EmbedText to the Embedder seam
// so tests can substitute a stub instead of dialing a real HTTP endpoint.
type embeddingEndpoint struct {
	cfg config.EmbeddingConfig
}

func (e embeddingEndpoint) EmbedText(ctx context.Context, inputs []string) ([][]float32, error) {
	return embedding.EmbedText(ctx, e.cfg, inputs)
}

// Metrics is the subset of internal/rag/obs's OtelMetrics this package
// depends on, so tests can inject internal/rag/obs.MockMetrics instead.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// noopMetrics discards every call; used when a Processor is built without
// an explicit Metrics sink.
type noopMetrics struct{}

func (noopMetrics) IncCounter(string, map[string]string)            {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// Processor is the process-scoped C11 object: constructed once in a startup
// hook, torn down in a shutdown hook, every dependency injectable via the
// constructor so tests can run without a live store, embedder, or LLM (§9
// "Global mutable state").
type Processor struct {
	Store    store.Client
	Gateway  *llmgateway.Gateway
	Embedder Embedder
	Metrics  Metrics
	Cache    *ragcache.Cache // optional; nil disables caching

	ChunkIndex   string
	ClusterIndex string

	TopK             int
	MaxContextTokens int
	TopDepth         int
}

// NewProcessor builds a Processor wired against a live store, LLM gateway,
// and the configured embedding endpoint.
func NewProcessor(cfg config.Config, s store.Client, gw *llmgateway.Gateway) *Processor {
	return &Processor{
		Store:            s,
		Gateway:          gw,
		Embedder:         embeddingEndpoint{cfg: cfg.Embedding},
		Metrics:          noopMetrics{},
		ChunkIndex:       cfg.Store.ChunkCompleteIndex,
		ClusterIndex:     cfg.Store.ClusterIndex,
		TopK:             cfg.RAGTopK,
		MaxContextTokens: cfg.RAGMaxContextTokens,
		TopDepth:         cfg.RAGTopDepth,
	}
}

// AskRequest mirrors the §6 wire body of POST /ask.
type AskRequest struct {
	Question              string `json:"question"`
	QuestionType           string `json:"question_type"`
	SupportingInformation []any  `json:"supporting_information"`
}

// AskResponse mirrors the §6 wire body of POST /ask's response.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

func (p *Processor) metrics() Metrics {
	if p.Metrics == nil {
		return noopMetrics{}
	}
	return p.Metrics
}

// Ask dispatches on req.QuestionType per §4.11. A cache hit (keyed on
// question type, text, and supporting information) short-circuits both
// retrieval and the C12 call.
func (p *Processor) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	start := time.Now()
	defer func() {
		p.metrics().ObserveHistogram("rag_ask_duration_seconds", time.Since(start).Seconds(), map[string]string{"question_type": req.QuestionType})
	}()

	if req.QuestionType != QuestionDocumentSpecific && req.QuestionType != QuestionCorpusSpecific {
		return AskResponse{}, &InvalidRequestError{Message: fmt.Sprintf("unknown question_type %q", req.QuestionType)}
	}

	cacheKey := ragcache.Key(req.QuestionType, req.Question, stringifySupportingInfo(req.SupportingInformation))
	var cached AskResponse
	if p.Cache.Get(ctx, cacheKey, &cached) {
		p.metrics().IncCounter("rag_ask_cache_hit_total", map[string]string{"question_type": req.QuestionType})
		return cached, nil
	}

	p.metrics().IncCounter("rag_ask_total", map[string]string{"question_type": req.QuestionType})
	var (
		resp AskResponse
		err  error
	)
	if req.QuestionType == QuestionDocumentSpecific {
		resp, err = p.askDocumentSpecific(ctx, req)
	} else {
		resp, err = p.askCorpusSpecific(ctx, req)
	}
	if err != nil {
		return AskResponse{}, err
	}
	p.Cache.Set(ctx, cacheKey, resp)
	return resp, nil
}

// InvalidRequestError signals a 400-worthy input shape error (§6: "400 for
// invalid question_type").
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string { return e.Message }

// Embed returns the raw embedding of a text via the same model C6 uses
// (§4.11 POST /embed).
func (p *Processor) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embedder.EmbedText(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("rag: embed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("rag: embed: empty response")
	}
	return vectors[0], nil
}

// askDocumentSpecific implements §4.11's first question type: encode the
// question, run a filtered vector search restricted to the supplied document
// ids (one SimilaritySearch per id, since the store's filter DSL is an exact
// AND match with no "IN" operator — merging per-id hits and re-ranking by
// score is equivalent to a single OR'd filter), take the combined top K,
// concatenate chunk texts within the token budget, and ask C12 for the
// answer.
func (p *Processor) askDocumentSpecific(ctx context.Context, req AskRequest) (AskResponse, error) {
	docIDs := stringifySupportingInfo(req.SupportingInformation)
	if len(docIDs) == 0 {
		return AskResponse{}, &InvalidRequestError{Message: "document-specific question requires supporting_information document ids"}
	}

	questionVec, err := p.Embed(ctx, req.Question)
	if err != nil {
		return AskResponse{}, err
	}

	topK := p.TopK
	if topK <= 0 {
		topK = 10
	}

	var hits []store.VectorResult
	for _, docID := range docIDs {
		res, err := p.Store.SimilaritySearch(ctx, p.ChunkIndex, questionVec, topK, map[string]string{"articleId": docID})
		if err != nil {
			return AskResponse{}, fmt.Errorf("rag: similarity search: %w", err)
		}
		hits = append(hits, res...)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	budget := p.MaxContextTokens - estimateTokens(req.Question) - answerPromptTemplateTokens - contextSafetyMargin
	var contextText string
	var sources []string
	seen := make(map[string]bool)
	for _, hit := range hits {
		text := hit.Payload["text"]
		if text == "" {
			continue
		}
		if estimateTokens(contextText)+estimateTokens(text) > budget {
			break
		}
		contextText += text + "\n"
		docID := hit.Payload["articleId"]
		if docID != "" && !seen[docID] && len(sources) < maxSourceIDs {
			seen[docID] = true
			sources = append(sources, docID)
		}
	}

	answer, err := p.Gateway.AnswerPrompt(ctx, req.Question, contextText)
	if err != nil {
		return AskResponse{}, fmt.Errorf("rag: answer prompt: %w", err)
	}
	return AskResponse{Answer: answer, Sources: sources}, nil
}

// askCorpusSpecific implements §4.11's second question type: either fetch
// clusters the caller named directly, or have C12 parse the question into
// one of the three intents and build the corresponding query, then ask C12
// for the final answer over the aggregated cluster hits.
func (p *Processor) askCorpusSpecific(ctx context.Context, req AskRequest) (AskResponse, error) {
	labels := stringifySupportingInfo(req.SupportingInformation)

	var clusters []model.Cluster
	var err error
	if len(labels) > 0 {
		clusters, err = p.fetchClustersByLabel(ctx, labels)
	} else {
		clusters, err = p.fetchClustersByIntent(ctx, req.Question)
	}
	if err != nil {
		return AskResponse{}, err
	}

	retrieved, err := json.Marshal(clustersToRetrievalPayload(clusters))
	if err != nil {
		return AskResponse{}, fmt.Errorf("rag: marshal retrieved clusters: %w", err)
	}

	answer, err := p.Gateway.AnswerPrompt(ctx, req.Question, string(retrieved))
	if err != nil {
		return AskResponse{}, fmt.Errorf("rag: answer prompt: %w", err)
	}

	sources := make([]string, 0, len(clusters))
	for _, c := range clusters {
		sources = append(sources, c.ID)
	}
	return AskResponse{Answer: answer, Sources: sources}, nil
}

func (p *Processor) fetchClustersByLabel(ctx context.Context, labels []string) ([]model.Cluster, error) {
	page, err := p.Store.Search(ctx, p.ClusterIndex, store.Query{MatchPhrase: "label", PhraseValues: labels}, 50, nil)
	if err != nil {
		return nil, fmt.Errorf("rag: search clusters by label: %w", err)
	}
	return documentsToClusters(page.Items), nil
}

func (p *Processor) fetchClustersByIntent(ctx context.Context, question string) ([]model.Cluster, error) {
	intent, err := p.Gateway.ParseIntent(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("rag: parse intent: %w", err)
	}

	switch intent.Intent {
	case llmgateway.IntentListTopicsInCluster, llmgateway.IntentListQuestionsInCluster:
		cluster, _ := intent.Parameters["cluster"].(string)
		if cluster == "" {
			return nil, &InvalidRequestError{Message: "intent requires a cluster parameter"}
		}
		return p.fetchClustersByLabel(ctx, []string{cluster})
	case llmgateway.IntentGetCorpusInfo:
		page, err := p.Store.Search(ctx, p.ClusterIndex, store.Query{Ranges: []store.RangeFilter{{Field: "depth", Gte: fmt.Sprintf("%d", p.TopDepth)}}}, 200, nil)
		if err != nil {
			return nil, fmt.Errorf("rag: search high-level clusters: %w", err)
		}
		return documentsToClusters(page.Items), nil
	default:
		return nil, &InvalidRequestError{Message: fmt.Sprintf("unrecognized intent %q", intent.Intent)}
	}
}

func documentsToClusters(docs []store.Document) []model.Cluster {
	out := make([]model.Cluster, 0, len(docs))
	for _, d := range docs {
		out = append(out, docmap.ClusterFromBody(d.Body, d.Vector))
	}
	return out
}

func clustersToRetrievalPayload(clusters []model.Cluster) []map[string]any {
	out := make([]map[string]any, 0, len(clusters))
	for _, c := range clusters {
		words := make([]string, 0, len(c.TopicWords))
		for w := range c.TopicWords {
			words = append(words, w)
		}
		sort.Strings(words)
		out = append(out, map[string]any{
			"cluster_id":   c.ID,
			"label":        c.Label,
			"description":  c.Description,
			"topic_words":  words,
		})
	}
	return out
}

// stringifySupportingInfo renders the wire protocol's `(string|int)[]`
// supporting_information array as plain strings, since JSON numbers decode
// to float64 via the `any` element type.
func stringifySupportingInfo(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if val != "" {
				out = append(out, val)
			}
		case float64:
			out = append(out, fmt.Sprintf("%d", int64(val)))
		}
	}
	return out
}

// estimateTokens approximates a token count as roughly 4 bytes/token, a
// standard rule-of-thumb across English prose, since no tokenizer library
// appears anywhere in the example pack (the actual provider-side tokenizer
// runs server-side and is not reproducible here).
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}
