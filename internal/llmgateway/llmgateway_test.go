package llmgateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/achouhan93/clusterchat-go/internal/config"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	f.calls++
	return f.response, f.err
}

func newTestGateway(fc *fakeCompleter) *Gateway {
	return &Gateway{
		completers:  map[string]completer{"test": fc},
		profiles:    map[string]config.LLMProfile{"test": {Provider: "test", Temperature: 0.1, MaxTokens: 256}},
		defaultName: "test",
	}
}

func TestExtractBalancedJSON_FindsFirstBalancedObject(t *testing.T) {
	raw := `Sure, here you go: {"label": "Cardiac Care", "description": "Studies on heart treatment outcomes"} thanks!`
	block := extractBalancedJSON(raw)
	require.Equal(t, `{"label": "Cardiac Care", "description": "Studies on heart treatment outcomes"}`, block)
}

func TestExtractBalancedJSON_HandlesNestedBraces(t *testing.T) {
	raw := `{"intent": "get_corpus_info", "parameters": {"nested": {"x": 1}}}`
	block := extractBalancedJSON(raw)
	require.Equal(t, raw, block)
}

func TestExtractBalancedJSON_IgnoresBracesInsideStrings(t *testing.T) {
	raw := `{"label": "weird } brace", "description": "ok"}`
	block := extractBalancedJSON(raw)
	require.Equal(t, raw, block)
}

func TestExtractBalancedJSON_NoObjectReturnsEmpty(t *testing.T) {
	require.Equal(t, "", extractBalancedJSON("no json here"))
}

func TestTopicMetadataPrompt_ParsesWellFormedResponse(t *testing.T) {
	fc := &fakeCompleter{response: `{"label": "Cardiac Care", "description": "Heart treatment outcomes"}`}
	g := newTestGateway(fc)

	meta := g.TopicMetadataPrompt(context.Background(), []string{"cardiac", "arrhythmia", "treatment"})
	require.NotNil(t, meta.Label)
	require.Equal(t, "Cardiac Care", *meta.Label)
	require.Equal(t, "Heart treatment outcomes", *meta.Description)
	require.Empty(t, meta.Error)
}

func TestTopicMetadataPrompt_RecoversOnMalformedJSON(t *testing.T) {
	fc := &fakeCompleter{response: `not json at all`}
	g := newTestGateway(fc)

	meta := g.TopicMetadataPrompt(context.Background(), []string{"x"})
	require.Nil(t, meta.Label)
	require.Nil(t, meta.Description)
	require.NotEmpty(t, meta.Error)
	require.Equal(t, "not json at all", meta.RawOutput)
}

func TestParentClusterPrompt_ParsesWellFormedResponse(t *testing.T) {
	fc := &fakeCompleter{response: `{"label": "Oncology", "description": "Cancer diagnosis and treatment"}`}
	g := newTestGateway(fc)

	meta := g.ParentClusterPrompt(context.Background(), "Tumors", "Tumor biology", "Chemo", "Chemotherapy regimens")
	require.Equal(t, "Oncology", *meta.Label)
}

func TestParseIntent_ParsesValidIntent(t *testing.T) {
	fc := &fakeCompleter{response: `{"intent": "get_corpus_info", "parameters": {}}`}
	g := newTestGateway(fc)

	intent, err := g.ParseIntent(context.Background(), "give me an overview of the corpus")
	require.NoError(t, err)
	require.Equal(t, IntentGetCorpusInfo, intent.Intent)
}

func TestParseIntent_ReturnsErrorOnMalformedJSON(t *testing.T) {
	fc := &fakeCompleter{response: `garbage`}
	g := newTestGateway(fc)

	_, err := g.ParseIntent(context.Background(), "what topics are in cluster 4?")
	require.Error(t, err)
}

func TestAnswerPrompt_ReturnsRawCompletion(t *testing.T) {
	fc := &fakeCompleter{response: "Based on the retrieved data, the answer is X."}
	g := newTestGateway(fc)

	answer, err := g.AnswerPrompt(context.Background(), "what is X?", `[{"title":"A"}]`)
	require.NoError(t, err)
	require.Equal(t, "Based on the retrieved data, the answer is X.", answer)
}

func TestIsClientError_DetectsHTTPStatusInErrorString(t *testing.T) {
	require.True(t, isClientError(errString("request failed: 400 Bad Request")))
	require.False(t, isClientError(errString("connection reset by peer")))
}

type errString string

func (e errString) Error() string { return string(e) }
