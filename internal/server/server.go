// Package server exposes the linker service as MCP tools over stdio or SSE.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
	"github.com/ZanzyTHEbar/recon-linker-go/pkg/linker"
)

const (
	defaultProject = "default"
	serverName     = "recon-linker"
)

// MCPServer handles MCP protocol communication
type MCPServer struct {
	server *mcp.Server
	svc    *linker.Service
	log    *zap.Logger
}

// NewMCPServer creates a new MCP server backed by svc. A nil logger disables logging.
func NewMCPServer(svc *linker.Service, logger *zap.Logger) *MCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: buildinfo.Version,
	}, nil)

	s := &MCPServer{
		server: server,
		svc:    svc,
		log:    logger.Named("server"),
	}
	s.setupToolHandlers()
	return s
}

func mustSchema[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T]()
	if err != nil {
		var zero T
		panic(fmt.Sprintf("failed to create schema for %T: %v", zero, err))
	}
	return schema
}

// setupToolHandlers registers all MCP tools
func (s *MCPServer) setupToolHandlers() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "ingest_identifiers",
		Title:        "Ingest Identifiers",
		Description:  "Store identifier records and/or parse reconnaissance tool output files. Duplicates are ignored.",
		InputSchema:  mustSchema[apptype.IngestIdentifiersArgs](),
		OutputSchema: mustSchema[apptype.IngestIdentifiersResult](),
	}, s.handleIngestIdentifiers)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_suspects",
		Title:       "Add Suspects",
		Description: "Store suspect names supplied by an analyst.",
		InputSchema: mustSchema[apptype.AddSuspectsArgs](),
	}, s.handleAddSuspects)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "correlate",
		Title:        "Correlate",
		Description:  "Scan every pair of stored entities and record containment-based relationships.",
		InputSchema:  mustSchema[apptype.CorrelateArgs](),
		OutputSchema: mustSchema[apptype.CorrelationSummary](),
	}, s.handleCorrelate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "link_address",
		Title:        "Link Address",
		Description:  "Link asserted suspects to an address with per-suspect confidence.",
		InputSchema:  mustSchema[apptype.LinkAddressArgs](),
		OutputSchema: mustSchema[apptype.LinkSummary](),
	}, s.handleLinkAddress)

	readOnly := mcp.ToolAnnotations{ReadOnlyHint: true}

	// Read results embed entity timestamps and carry no output schema: the inferred schema
	// for time.Time does not describe its JSON string form.
	mcp.AddTool(s.server, &mcp.Tool{
		Annotations: &readOnly,
		Name:        "ranked_entities",
		Title:       "Ranked Entities",
		Description: "List entities ordered by relationship count, then confidence.",
		InputSchema: mustSchema[apptype.RankedEntitiesArgs](),
	}, s.handleRankedEntities)

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations: &readOnly,
		Name:        "linked_entities",
		Title:       "Linked Entities",
		Description: "List the entities related to a named entity, optionally filtered by type.",
		InputSchema: mustSchema[apptype.LinkedEntitiesArgs](),
	}, s.handleLinkedEntities)

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations: &readOnly,
		Name:        "get_entity",
		Title:       "Get Entity",
		Description: "Fetch one entity by exact name.",
		InputSchema: mustSchema[apptype.GetEntityArgs](),
	}, s.handleGetEntity)

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations: &readOnly,
		Name:        "search_entities",
		Title:       "Search Entities",
		Description: "Find entities whose name contains a substring.",
		InputSchema: mustSchema[apptype.SearchEntitiesArgs](),
	}, s.handleSearchEntities)

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations:  &readOnly,
		Name:         "health_check",
		Title:        "Health Check",
		Description:  "Returns server and configuration information.",
		InputSchema:  mustSchema[apptype.HealthArgs](),
		OutputSchema: mustSchema[apptype.HealthResult](),
	}, s.handleHealth)
}

func (s *MCPServer) getProjectName(providedName string) string {
	if providedName != "" {
		return providedName
	}
	return defaultProject
}

// handleIngestIdentifiers handles the ingest_identifiers tool call
func (s *MCPServer) handleIngestIdentifiers(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.IngestIdentifiersArgs],
) (*mcp.CallToolResultFor[apptype.IngestIdentifiersResult], error) {
	done := metrics.TimeTool("ingest_identifiers")
	var success bool
	defer func() { done(success) }()
	projectName := s.getProjectName(params.Arguments.ProjectArgs.ProjectName)

	var out apptype.IngestIdentifiersResult
	if len(params.Arguments.Records) > 0 {
		summary, err := s.svc.Ingest(ctx, projectName, params.Arguments.Records)
		if err != nil {
			return nil, fmt.Errorf("failed to ingest records: %w", err)
		}
		out.Records = summary
	}
	for _, f := range params.Arguments.Files {
		summary, err := s.svc.IngestFile(ctx, projectName, f)
		if err != nil {
			if out.FileErrors == nil {
				out.FileErrors = make(map[string]string)
			}
			out.FileErrors[f] = err.Error()
			continue
		}
		if out.Files == nil {
			out.Files = make(map[string]apptype.IngestSummary)
		}
		out.Files[f] = summary
	}
	success = true

	inserted := out.Records.Inserted
	for _, fs := range out.Files {
		inserted += fs.Inserted
	}
	return &mcp.CallToolResultFor[apptype.IngestIdentifiersResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Stored %d new entities in project %s", inserted, projectName)},
		},
		StructuredContent: out,
	}, nil
}

// handleAddSuspects handles the add_suspects tool call
func (s *MCPServer) handleAddSuspects(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.AddSuspectsArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("add_suspects")
	var success bool
	defer func() { done(success) }()
	projectName := s.getProjectName(params.Arguments.ProjectArgs.ProjectName)

	summary, err := s.svc.AddSuspects(ctx, projectName, params.Arguments.Names)
	if err != nil {
		return nil, err
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Added %d suspects (%d already present, %d skipped) in project %s",
				summary.Inserted, summary.Duplicates, len(summary.Skipped), projectName)},
		},
	}, nil
}

// handleCorrelate handles the correlate tool call
func (s *MCPServer) handleCorrelate(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CorrelateArgs],
) (*mcp.CallToolResultFor[apptype.CorrelationSummary], error) {
	done := metrics.TimeTool("correlate")
	var success bool
	defer func() { done(success) }()
	projectName := s.getProjectName(params.Arguments.ProjectArgs.ProjectName)

	summary, err := s.svc.Correlate(ctx, projectName, params.Arguments.Workflow)
	if err != nil {
		return nil, err
	}
	success = true
	return &mcp.CallToolResultFor[apptype.CorrelationSummary]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Correlation %s created %d relationships from %d pairs",
				summary.RunID, summary.Created, summary.PairsEvaluated)},
		},
		StructuredContent: summary,
	}, nil
}

// handleLinkAddress handles the link_address tool call
func (s *MCPServer) handleLinkAddress(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.LinkAddressArgs],
) (*mcp.CallToolResultFor[apptype.LinkSummary], error) {
	done := metrics.TimeTool("link_address")
	var success bool
	defer func() { done(success) }()
	projectName := s.getProjectName(params.Arguments.ProjectArgs.ProjectName)

	summary, err := s.svc.LinkAddress(ctx, projectName, params.Arguments.Address, params.Arguments.Suspects)
	if err != nil {
		return nil, err
	}
	success = true
	return &mcp.CallToolResultFor[apptype.LinkSummary]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Linked %d suspects to %s", summary.Linked, params.Arguments.Address)},
		},
		StructuredContent: summary,
	}, nil
}

// handleRankedEntities handles the ranked_entities tool call
func (s *MCPServer) handleRankedEntities(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.RankedEntitiesArgs],
) (*mcp.CallToolResultFor[apptype.RankedEntitiesResult], error) {
	done := metrics.TimeTool("ranked_entities")
	var success bool
	defer func() { done(success) }()
	projectName := s.getProjectName(params.Arguments.ProjectArgs.ProjectName)

	ranked, err := s.svc.RankedEntities(ctx, projectName)
	if err != nil {
		return nil, fmt.Errorf("failed to rank entities: %w", err)
	}
	if limit := params.Arguments.Limit; limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	success = true
	return &mcp.CallToolResultFor[apptype.RankedEntitiesResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%d entities", len(ranked))}},
		StructuredContent: apptype.RankedEntitiesResult{Entities: ranked},
	}, nil
}

// handleLinkedEntities handles the linked_entities tool call
func (s *MCPServer) handleLinkedEntities(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.LinkedEntitiesArgs],
) (*mcp.CallToolResultFor[apptype.LinkedEntitiesResult], error) {
	done := metrics.TimeTool("linked_entities")
	var success bool
	defer func() { done(success) }()
	projectName := s.getProjectName(params.Arguments.ProjectArgs.ProjectName)

	linked, err := s.svc.EntitiesLinkedTo(ctx, projectName, params.Arguments.Name, params.Arguments.Type)
	if err != nil {
		return nil, err
	}
	success = true
	return &mcp.CallToolResultFor[apptype.LinkedEntitiesResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%d linked entities", len(linked))}},
		StructuredContent: apptype.LinkedEntitiesResult{Entities: linked},
	}, nil
}

// handleGetEntity handles the get_entity tool call
func (s *MCPServer) handleGetEntity(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.GetEntityArgs],
) (*mcp.CallToolResultFor[apptype.Entity], error) {
	done := metrics.TimeTool("get_entity")
	var success bool
	defer func() { done(success) }()
	projectName := s.getProjectName(params.Arguments.ProjectArgs.ProjectName)

	e, err := s.svc.GetEntity(ctx, projectName, params.Arguments.Name)
	if err != nil {
		return nil, err
	}
	success = true
	return &mcp.CallToolResultFor[apptype.Entity]{
		Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s (%s)", e.Name, e.Type)}},
		StructuredContent: *e,
	}, nil
}

// handleSearchEntities handles the search_entities tool call
func (s *MCPServer) handleSearchEntities(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SearchEntitiesArgs],
) (*mcp.CallToolResultFor[apptype.EntitiesResult], error) {
	done := metrics.TimeTool("search_entities")
	var success bool
	defer func() { done(success) }()
	projectName := s.getProjectName(params.Arguments.ProjectArgs.ProjectName)

	found, err := s.svc.SearchEntities(ctx, projectName, params.Arguments.Query, params.Arguments.Type, params.Arguments.Limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.EntitiesResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: "Search completed successfully"}},
		StructuredContent: apptype.EntitiesResult{Entities: found},
	}, nil
}

func (s *MCPServer) handleHealth(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.HealthArgs],
) (*mcp.CallToolResultFor[apptype.HealthResult], error) {
	done := metrics.TimeTool("health_check")
	defer func() { done(true) }()
	db := s.svc.Store()
	inUse, idle := db.PoolStats()
	metrics.Default().ObservePoolStats(inUse, idle)
	return &mcp.CallToolResultFor[apptype.HealthResult]{
		Content: []mcp.Content{&mcp.TextContent{Text: "ok"}},
		StructuredContent: apptype.HealthResult{
			Name:         serverName,
			Version:      buildinfo.Version,
			Revision:     buildinfo.Revision,
			BuildDate:    buildinfo.BuildDate,
			MultiProject: db.Config().MultiProjectMode,
		},
	}, nil
}

// reportPoolStats samples connection pool gauges until ctx is done.
func (s *MCPServer) reportPoolStats(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				inUse, idle := s.svc.Store().PoolStats()
				metrics.Default().ObservePoolStats(inUse, idle)
			}
		}
	}()
}

// Run starts the MCP server with stdio transport
func (s *MCPServer) Run(ctx context.Context) error {
	s.reportPoolStats(ctx)
	return s.server.Run(ctx, mcp.NewStdioTransport())
}

// Handler returns the SSE HTTP handler mounted at endpoint.
func (s *MCPServer) Handler(endpoint string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(endpoint, mcp.NewSSEHandler(func(r *http.Request) *mcp.Server { return s.server }))
	return mux
}

// RunSSE starts the MCP server over SSE at the given address and endpoint
func (s *MCPServer) RunSSE(ctx context.Context, addr string, endpoint string) error {
	s.reportPoolStats(ctx)
	srv := &http.Server{Addr: addr, Handler: s.Handler(endpoint), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("SSE MCP server listening", zap.String("addr", addr), zap.String("endpoint", endpoint))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
