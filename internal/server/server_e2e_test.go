package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
	"github.com/ZanzyTHEbar/recon-linker-go/pkg/linker"
)

func connect(t *testing.T) (context.Context, *mcp.ClientSession) {
	t.Helper()
	svc, err := linker.NewService(&linker.Config{
		URL:          "file:" + filepath.Join(t.TempDir(), "e2e.db"),
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	ts := httptest.NewServer(NewMCPServer(svc, nil).Handler("/sse"))
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	client := mcp.NewClient(&mcp.Implementation{Name: "e2e-client", Version: "test"}, nil)
	var session *mcp.ClientSession
	// retry connect a few times to avoid flakes
	for i := 0; i < 5; i++ {
		session, err = client.Connect(ctx, mcp.NewSSEClientTransport(ts.URL+"/sse", nil))
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return ctx, session
}

func call(t *testing.T, ctx context.Context, session *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: json.RawMessage(raw)})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool %s returned an error result", name)
	return res
}

func text(res *mcp.CallToolResult) string {
	if len(res.Content) == 0 {
		return ""
	}
	if tc, ok := res.Content[0].(*mcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

func TestSSEServer_ListTools(t *testing.T) {
	ctx, session := connect(t)

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"ingest_identifiers", "add_suspects", "correlate", "link_address",
		"ranked_entities", "linked_entities", "get_entity", "search_entities", "health_check",
	}, names)
}

func TestSSEServer_IngestCorrelateRank(t *testing.T) {
	ctx, session := connect(t)
	project := apptype.ProjectArgs{ProjectName: "case-7"}

	res := call(t, ctx, session, "ingest_identifiers", apptype.IngestIdentifiersArgs{
		ProjectArgs: project,
		Records: []apptype.IdentifierRecord{
			{Name: "alice@example.com", Type: "email", SourceTool: "theharvester", Confidence: 0.8},
			{Name: "example.com", Type: "domain", SourceTool: "theharvester", Confidence: 0.8},
		},
	})
	assert.Contains(t, text(res), "Stored 2 new entities")

	res = call(t, ctx, session, "add_suspects", apptype.AddSuspectsArgs{ProjectArgs: project, Names: []string{"alice"}})
	assert.Contains(t, text(res), "Added 1 suspects")

	res = call(t, ctx, session, "correlate", apptype.CorrelateArgs{ProjectArgs: project})
	assert.Contains(t, text(res), "created 2 relationships")

	res = call(t, ctx, session, "ranked_entities", apptype.RankedEntitiesArgs{ProjectArgs: project, Limit: 1})
	assert.Equal(t, "1 entities", text(res))

	res = call(t, ctx, session, "get_entity", apptype.GetEntityArgs{ProjectArgs: project, Name: "alice@example.com"})
	assert.Equal(t, "alice@example.com (email)", text(res))

	res = call(t, ctx, session, "linked_entities", apptype.LinkedEntitiesArgs{ProjectArgs: project, Name: "alice@example.com"})
	assert.Equal(t, "2 linked entities", text(res))

	res = call(t, ctx, session, "search_entities", apptype.SearchEntitiesArgs{ProjectArgs: project, Query: "example"})
	assert.Equal(t, "Search completed successfully", text(res))
}

func TestSSEServer_LinkAddress(t *testing.T) {
	ctx, session := connect(t)

	res := call(t, ctx, session, "link_address", apptype.LinkAddressArgs{
		Address: "12 Elm St",
		Suspects: []apptype.SuspectAssertion{
			{Name: "John Doe", Relationship: "tenant", Confidence: 0.9},
		},
	})
	assert.Equal(t, "Linked 1 suspects to 12 Elm St", text(res))

	res = call(t, ctx, session, "linked_entities", apptype.LinkedEntitiesArgs{Name: "12 Elm St", Type: "suspect"})
	assert.Equal(t, "1 linked entities", text(res))

	res = call(t, ctx, session, "health_check", apptype.HealthArgs{})
	assert.Equal(t, "ok", text(res))
}
