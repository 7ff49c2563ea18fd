//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryResult struct {
	Results []struct {
		ID       string  `json:"id"`
		Text     string  `json:"text"`
		Score    float64 `json:"score"`
		Metadata struct {
			SourceDocumentID string  `json:"source_document_id"`
			OwnerUserID      string  `json:"owner_user_id"`
			TeamID           *string `json:"team_id"`
			KnowledgeBaseID  *string `json:"knowledge_base_id"`
			ChunkIndex       int     `json:"chunk_index"`
		} `json:"metadata"`
	} `json:"results"`
	Count int `json:"count"`
}

func (e *E2ETestEnv) query(userID, query string, topK int) queryResult {
	resp, status, err := e.Post("/query", map[string]interface{}{
		"user_id": userID,
		"query":   query,
		"top_k":   topK,
	}, e.AuthToken)
	require.NoError(e.T, err)
	require.Equal(e.T, http.StatusOK, status, "query failed: %s", resp.Error)

	var result queryResult
	require.NoError(e.T, json.Unmarshal(resp.Data, &result))
	return result
}

func (e *E2ETestEnv) ingestSync(body map[string]interface{}) (*APIResponse, int) {
	resp, status, err := e.Post("/ingest", body, e.AuthToken)
	require.NoError(e.T, err)
	return resp, status
}

func TestE2E_IngestAndFilteredQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	kbID := env.CreateKnowledgeBase("engineering-docs", "alice")

	content := strings.Repeat("The deployment pipeline promotes builds from staging to production. ", 30)
	env.PutSource("docs/deploy.txt", content)

	resp, status := env.ingestSync(map[string]interface{}{
		"source_location":    "docs/deploy.txt",
		"source_document_id": "doc-deploy",
		"owner_user_id":      "alice",
		"knowledge_base_id":  kbID,
	})
	require.Equal(t, http.StatusCreated, status, "ingest failed: %s", resp.Error)

	var ingestResult struct {
		ChunksCreated int `json:"chunks_created"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &ingestResult))
	assert.Greater(t, ingestResult.ChunksCreated, 0)

	t.Run("owner sees own document", func(t *testing.T) {
		result := env.query("alice", "deployment pipeline", 10)
		require.NotEmpty(t, result.Results)
		assert.Equal(t, "doc-deploy", result.Results[0].Metadata.SourceDocumentID)
		assert.Equal(t, ingestResult.ChunksCreated, result.Count)
	})

	t.Run("stranger sees nothing", func(t *testing.T) {
		result := env.query("bob", "deployment pipeline", 10)
		assert.Empty(t, result.Results)
		assert.Equal(t, 0, result.Count)
	})

	t.Run("direct grant opens access", func(t *testing.T) {
		env.Grant(kbID, domain.GranteeUser, "bob", domain.RoleViewer)

		result := env.query("bob", "deployment pipeline", 10)
		require.NotEmpty(t, result.Results)
		assert.Equal(t, "doc-deploy", result.Results[0].Metadata.SourceDocumentID)
	})

	t.Run("access check reflects grants", func(t *testing.T) {
		check := func(userID string) (bool, string) {
			resp, status, err := env.Post("/access/check", map[string]string{
				"user_id":           userID,
				"knowledge_base_id": kbID,
			}, env.AuthToken)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, status)
			var out struct {
				Allowed bool   `json:"allowed"`
				Level   string `json:"level"`
			}
			require.NoError(t, json.Unmarshal(resp.Data, &out))
			return out.Allowed, out.Level
		}

		allowed, level := check("alice")
		assert.True(t, allowed)
		assert.Equal(t, "owner", level)

		allowed, level = check("bob")
		assert.True(t, allowed)
		assert.Equal(t, "viewer", level)

		allowed, level = check("carol")
		assert.False(t, allowed)
		assert.Empty(t, level)
	})
}

func TestE2E_TeamVisibility(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	env.AddTeamMember("team-platform", "dave", domain.RoleEditor)
	env.AddTeamMember("team-platform", "erin", domain.RoleViewer)

	env.PutSource("docs/runbook.txt", strings.Repeat("Rotate the pager schedule every Monday morning. ", 25))

	resp, status := env.ingestSync(map[string]interface{}{
		"source_location":    "docs/runbook.txt",
		"source_document_id": "doc-runbook",
		"owner_user_id":      "dave",
		"team_id":            "team-platform",
	})
	require.Equal(t, http.StatusCreated, status, "ingest failed: %s", resp.Error)

	t.Run("teammate sees team document", func(t *testing.T) {
		result := env.query("erin", "pager schedule", 10)
		require.NotEmpty(t, result.Results)
		assert.Equal(t, "doc-runbook", result.Results[0].Metadata.SourceDocumentID)
	})

	t.Run("outsider does not", func(t *testing.T) {
		result := env.query("frank", "pager schedule", 10)
		assert.Empty(t, result.Results)
	})

	t.Run("non-member cannot ingest into team", func(t *testing.T) {
		_, status := env.ingestSync(map[string]interface{}{
			"source_location":    "docs/runbook.txt",
			"source_document_id": "doc-runbook-2",
			"owner_user_id":      "frank",
			"team_id":            "team-platform",
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestE2E_AsyncDocumentLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	env.PutSource("docs/handbook.txt", strings.Repeat("Expense reports are due by the fifth business day. ", 40))

	resp, status, err := env.Post("/documents", map[string]interface{}{
		"source_location":    "docs/handbook.txt",
		"source_document_id": "doc-handbook",
		"owner_user_id":      "grace",
	}, env.AuthToken)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, status, "enqueue failed: %s", resp.Error)

	var doc struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Percent int    `json:"percent"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	assert.Equal(t, "doc-handbook", doc.ID)
	assert.Equal(t, "pending", doc.Status)

	// The worker polls every 200ms; wait for it to pick up and finish.
	deadline := time.Now().Add(15 * time.Second)
	for {
		resp, status, err := env.Get("/documents/doc-handbook", env.AuthToken)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, json.Unmarshal(resp.Data, &doc))

		if doc.Status == "completed" {
			break
		}
		require.NotEqual(t, "failed", doc.Status, "ingestion failed")
		if time.Now().After(deadline) {
			t.Fatalf("document did not complete in time, status=%s", doc.Status)
		}
		time.Sleep(200 * time.Millisecond)
	}
	assert.Equal(t, 100, doc.Percent)

	result := env.query("grace", "expense reports", 10)
	require.NotEmpty(t, result.Results)

	t.Run("delete by document removes vectors", func(t *testing.T) {
		resp, status, err := env.Delete("/vectors?source_document_id=doc-handbook", nil, env.AuthToken)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var out struct {
			DeletedCount int64 `json:"deleted_count"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &out))
		assert.Greater(t, out.DeletedCount, int64(0))

		result := env.query("grace", "expense reports", 10)
		assert.Empty(t, result.Results)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		resp, status, err := env.Delete("/vectors?source_document_id=doc-handbook", nil, env.AuthToken)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var out struct {
			DeletedCount int64 `json:"deleted_count"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &out))
		assert.Equal(t, int64(0), out.DeletedCount)
	})
}

func TestE2E_Auth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	t.Run("health is public", func(t *testing.T) {
		resp, err := http.Get(env.ServerURL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		_, status, err := env.Post("/query", map[string]string{"user_id": "alice", "query": "x"}, "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		_, status, err := env.Post("/query", map[string]string{"user_id": "alice", "query": "x"}, "vg_"+strings.Repeat("0", 64))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("revoked key rejected", func(t *testing.T) {
		keys, err := env.AuthSvc.ListAPIKeys(env.Ctx)
		require.NoError(t, err)
		require.NotEmpty(t, keys)
		require.NoError(t, env.AuthSvc.RevokeAPIKey(env.Ctx, keys[0].ID))

		_, status, err := env.Post("/query", map[string]string{"user_id": "alice", "query": "x"}, env.AuthToken)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}
