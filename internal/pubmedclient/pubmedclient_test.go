package pubmedclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/achouhan93/clusterchat-go/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(config.ExternalServiceConfig{
		BaseURL: srv.URL,
		DB:      "pubmed",
		Timeout: 2 * time.Second,
	})
	return c, srv
}

func TestSearchIDs_SmallResultUsesIDList(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "esearch.fcgi")
		require.Equal(t, "pdat", r.URL.Query().Get("datetype"))
		fmt.Fprint(w, `<?xml version="1.0"?>
<eSearchResult>
  <Count>2</Count>
  <IdList><Id>111</Id><Id>222</Id></IdList>
</eSearchResult>`)
	})

	ids, err := c.SearchIDs(context.Background(), "2024/01/01", "2024/01/01")
	require.NoError(t, err)
	require.Equal(t, []string{"111", "222"}, ids)
}

func TestSearchIDs_LargeResultPaginatesViaHistory(t *testing.T) {
	var fetchCalls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case containsSubstr(r.URL.Path, "esearch.fcgi"):
			fmt.Fprint(w, `<?xml version="1.0"?>
<eSearchResult>
  <Count>10000</Count>
  <WebEnv>NCID_1</WebEnv>
  <QueryKey>1</QueryKey>
  <IdList></IdList>
</eSearchResult>`)
		case containsSubstr(r.URL.Path, "efetch.fcgi"):
			n := atomic.AddInt32(&fetchCalls, 1)
			fmt.Fprintf(w, `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle><MedlineCitation><PMID>%d</PMID></MedlineCitation></PubmedArticle>
</PubmedArticleSet>`, n)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ids, err := c.SearchIDs(context.Background(), "2024/01/01", "2024/01/01")
	require.NoError(t, err)
	require.Equal(t, 10, len(ids))
	require.EqualValues(t, 10, atomic.LoadInt32(&fetchCalls))
}

func TestFetchArticlesXML_ReturnsRawBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.ElementsMatch(t, []string{"1", "2"}, r.URL.Query()["id"])
		fmt.Fprint(w, `<PubmedArticleSet></PubmedArticleSet>`)
	})

	body, err := c.FetchArticlesXML(context.Background(), []string{"1", "2"})
	require.NoError(t, err)
	require.Contains(t, string(body), "PubmedArticleSet")
}

func TestGetWithRetry_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `<?xml version="1.0"?><eSearchResult><Count>0</Count><IdList></IdList></eSearchResult>`)
	})
	c.http.Timeout = 2 * time.Second

	ids, err := c.SearchIDs(context.Background(), "2024/01/01", "2024/01/01")
	require.NoError(t, err)
	require.Empty(t, ids)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestGetWithRetry_FailsAfterMaxRetries(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.SearchIDs(context.Background(), "2024/01/01", "2024/01/01")
	require.Error(t, err)
	require.EqualValues(t, maxRetries, atomic.LoadInt32(&calls))
}

func containsSubstr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
