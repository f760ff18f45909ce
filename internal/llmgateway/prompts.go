package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TopicMetadata is the §6 {label, description} contract shared by the topic
// and parent-cluster metadata prompts.
type TopicMetadata struct {
	Label       *string `json:"label"`
	Description *string `json:"description"`
	Error       string  `json:"error,omitempty"`
	RawOutput   string  `json:"raw_output,omitempty"`
}

const topicMetadataSystemPrompt = `You are labeling a cluster of related scientific article excerpts.
Given an ordered list of the cluster's most characteristic keywords, return a short
label and description for the topic they represent. Return only JSON of the exact
shape {"label": string, "description": string}. The label must be at most 3 words
and contain no punctuation. The description must be at most 15 words.`

// TopicMetadataPrompt synthesizes a topic's label/description from its ranked
// keyword list (§4.8, §6).
func (g *Gateway) TopicMetadataPrompt(ctx context.Context, words []string) TopicMetadata {
	user := fmt.Sprintf("Keywords (most characteristic first): %s", strings.Join(words, ", "))
	raw, err := g.complete(ctx, topicMetadataSystemPrompt, user)
	if err != nil {
		return TopicMetadata{Error: err.Error(), RawOutput: raw}
	}
	return parseTopicMetadata(raw)
}

const parentClusterSystemPrompt = `You are labeling a parent cluster formed by merging two child topic clusters.
Given the two children's labels and descriptions, return a label and description
that generalizes both. Return only JSON of the exact shape
{"label": string, "description": string}. The label must be at most 3 words and
contain no punctuation. The description must be at most 15 words.`

// ParentClusterPrompt synthesizes a merged cluster's label/description from
// its two children's metadata (§4.9 step 3).
func (g *Gateway) ParentClusterPrompt(ctx context.Context, leftLabel, leftDesc, rightLabel, rightDesc string) TopicMetadata {
	user := fmt.Sprintf(
		"Child A: label=%q description=%q\nChild B: label=%q description=%q",
		leftLabel, leftDesc, rightLabel, rightDesc,
	)
	raw, err := g.complete(ctx, parentClusterSystemPrompt, user)
	if err != nil {
		return TopicMetadata{Error: err.Error(), RawOutput: raw}
	}
	return parseTopicMetadata(raw)
}

// Intent is one of the three corpus-specific intents C11 may dispatch on
// (§4.11).
type Intent struct {
	Intent     string         `json:"intent"`
	Parameters map[string]any `json:"parameters"`
}

const (
	IntentListTopicsInCluster    = "list_topics_in_cluster"
	IntentListQuestionsInCluster = "list_questions_in_cluster"
	IntentGetCorpusInfo          = "get_corpus_info"
)

const intentSystemPrompt = `You parse a user's question about a scientific literature corpus into a
structured intent. Return only JSON of the exact shape {"intent": string, "parameters": object}.
intent must be exactly one of: "list_topics_in_cluster", "list_questions_in_cluster",
"get_corpus_info". For the first two, parameters must include "cluster" naming the
cluster the user refers to. For get_corpus_info, parameters may be empty.`

// ParseIntent classifies a corpus-specific question into one of the three
// intents C11 can handle when no explicit cluster label was supplied (§4.11).
func (g *Gateway) ParseIntent(ctx context.Context, question string) (Intent, error) {
	raw, err := g.complete(ctx, intentSystemPrompt, question)
	if err != nil {
		return Intent{}, err
	}
	block := extractBalancedJSON(raw)
	var intent Intent
	if block == "" {
		return Intent{}, fmt.Errorf("llmgateway: intent response had no JSON object: %q", raw)
	}
	if err := json.Unmarshal([]byte(block), &intent); err != nil {
		return Intent{}, fmt.Errorf("llmgateway: parse intent: %w", err)
	}
	return intent, nil
}

const answerSystemPrompt = `You answer questions about a scientific literature corpus using only the
retrieved data provided. Be concise and cite nothing beyond what is given. If the
retrieved data does not support an answer, say so plainly.`

// AnswerPrompt synthesizes the final free-text answer from the user's
// question and the retrieved context JSON (§4.11, §6).
func (g *Gateway) AnswerPrompt(ctx context.Context, userQuery, retrievedData string) (string, error) {
	user := fmt.Sprintf("Question: %s\n\nRetrieved data:\n%s", userQuery, retrievedData)
	return g.complete(ctx, answerSystemPrompt, user)
}

// parseTopicMetadata extracts the first balanced {...} block from raw and
// parses it as TopicMetadata; on any failure it returns the §7 recovery
// shape {label: null, description: null, error, raw_output} instead of
// propagating the error, since a malformed label/description must not abort
// the consolidation or hierarchy-build pipeline that called it.
func parseTopicMetadata(raw string) TopicMetadata {
	block := extractBalancedJSON(raw)
	if block == "" {
		return TopicMetadata{Error: "no JSON object in response", RawOutput: raw}
	}
	var out TopicMetadata
	if err := json.Unmarshal([]byte(block), &out); err != nil {
		return TopicMetadata{Error: err.Error(), RawOutput: raw}
	}
	return out
}

// extractBalancedJSON returns the first balanced {...} substring of s,
// respecting quoted strings and escapes, or "" if none is found (§4.12:
// "first matched via the first balanced { … } in the response").
func extractBalancedJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
