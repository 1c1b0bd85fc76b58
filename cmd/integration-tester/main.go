// Command integration-tester drives a running recon-linker SSE server through a full
// ingest, correlate and query cycle and prints a JSON step report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

type StepResult struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type Report struct {
	SSEURL     string       `json:"sse_url"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMs int64        `json:"duration_ms"`
	Steps      []StepResult `json:"steps"`
	Passed     bool         `json:"passed"`
}

func main() {
	sseURL := flag.String("sse-url", "http://localhost:8080/sse", "SSE endpoint URL")
	project := flag.String("project", "default", "Project name to use")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "integration-tester", Version: "dev"}, nil)
	transport := mcp.NewSSEClientTransport(*sseURL, nil)

	start := time.Now()
	report := Report{SSEURL: *sseURL, StartedAt: start}
	steps := make([]StepResult, 0, 12)

	tConn := time.Now()
	connRes := StepResult{Name: "connect"}
	session, err := client.Connect(ctx, transport)
	if err != nil {
		connRes.Error = err.Error()
		connRes.ElapsedMs = elapsedMsSince(tConn)
		report.Steps = append(steps, connRes)
		report.DurationMs = elapsedMsSince(start)
		emit(report)
		os.Exit(1)
	}
	defer session.Close()
	connRes.Success = true
	connRes.ElapsedMs = elapsedMsSince(tConn)
	steps = append(steps, connRes)

	pa := apptype.ProjectArgs{ProjectName: *project}
	steps = append(steps, runListTools(ctx, session))
	steps = append(steps, runTool(ctx, session, "ingest_identifiers", apptype.IngestIdentifiersArgs{
		ProjectArgs: pa,
		Records: []apptype.IdentifierRecord{
			{Name: "it-ops@example.org", Type: apptype.TypeEmail, SourceTool: "integration", Confidence: 0.8},
			{Name: "example.org", Type: apptype.TypeDomain, SourceTool: "integration", Confidence: 0.8},
			{Name: "vpn.example.org", Type: apptype.TypeHost, SourceTool: "integration", Confidence: 0.7},
		},
	}))
	steps = append(steps, runTool(ctx, session, "add_suspects", apptype.AddSuspectsArgs{ProjectArgs: pa, Names: []string{"it-ops"}}))
	steps = append(steps, runTool(ctx, session, "correlate", apptype.CorrelateArgs{ProjectArgs: pa, Workflow: "general"}))
	steps = append(steps, runTool(ctx, session, "link_address", apptype.LinkAddressArgs{
		ProjectArgs: pa,
		Address:     "1 Integration Way",
		Suspects:    []apptype.SuspectAssertion{{Name: "it-ops", Relationship: "tenant", Confidence: 0.9}},
	}))
	steps = append(steps, runTool(ctx, session, "ranked_entities", apptype.RankedEntitiesArgs{ProjectArgs: pa, Limit: 10}))
	steps = append(steps, runTool(ctx, session, "linked_entities", apptype.LinkedEntitiesArgs{ProjectArgs: pa, Name: "example.org"}))
	steps = append(steps, runTool(ctx, session, "get_entity", apptype.GetEntityArgs{ProjectArgs: pa, Name: "vpn.example.org"}))
	steps = append(steps, runTool(ctx, session, "search_entities", apptype.SearchEntitiesArgs{ProjectArgs: pa, Query: "example"}))
	steps = append(steps, runTool(ctx, session, "health_check", apptype.HealthArgs{}))

	report.Steps = steps
	report.DurationMs = elapsedMsSince(start)
	report.Passed = true
	for _, s := range steps {
		if !s.Success {
			report.Passed = false
			break
		}
	}
	emit(report)

	if !report.Passed {
		os.Exit(1)
	}
}

func emit(report Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func runListTools(ctx context.Context, session *mcp.ClientSession) StepResult {
	t0 := time.Now()
	res := StepResult{Name: "list_tools"}
	if _, err := session.ListTools(ctx, &mcp.ListToolsParams{}); err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
	}
	res.ElapsedMs = elapsedMsSince(t0)
	return res
}

func runTool(ctx context.Context, session *mcp.ClientSession, name string, args any) StepResult {
	t0 := time.Now()
	res := StepResult{Name: name}
	raw, _ := json.Marshal(args)
	out, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: json.RawMessage(raw)})
	switch {
	case err != nil:
		res.Error = err.Error()
	case out.IsError:
		res.Error = fmt.Sprintf("%s returned an error result", name)
	default:
		res.Success = true
	}
	res.ElapsedMs = elapsedMsSince(t0)
	return res
}

// elapsedMsSince returns max(1ms, elapsed) to avoid zero durations on fast steps
func elapsedMsSince(t0 time.Time) int64 {
	d := time.Since(t0) / time.Millisecond
	if d <= 0 {
		return 1
	}
	return int64(d)
}
