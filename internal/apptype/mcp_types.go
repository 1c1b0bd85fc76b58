package apptype

// ProjectArgs provides a standard way to pass project context to tools.
type ProjectArgs struct {
	ProjectName string `json:"projectName,omitempty" jsonschema:"The name of the project to operate on. If not provided, the default project is used."`
}

// IngestIdentifiersArgs represents the arguments for the ingest_identifiers tool
type IngestIdentifiersArgs struct {
	ProjectArgs ProjectArgs        `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Records     []IdentifierRecord `json:"records,omitempty" jsonschema:"Identifier records to store. Invalid records are skipped and reported."`
	Files       []string           `json:"files,omitempty" jsonschema:"Paths of tool output files to parse and store (theHarvester JSON, recon-ng CSV, SpiderFoot CSV)."`
}

// IngestIdentifiersResult is the structured output of ingest_identifiers
type IngestIdentifiersResult struct {
	Records    IngestSummary            `json:"records"`
	Files      map[string]IngestSummary `json:"files,omitempty"`
	FileErrors map[string]string        `json:"fileErrors,omitempty"`
}

// AddSuspectsArgs represents the arguments for the add_suspects tool
type AddSuspectsArgs struct {
	ProjectArgs ProjectArgs `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Names       []string    `json:"names" jsonschema:"Suspect names to store."`
}

// CorrelateArgs represents the arguments for the correlate tool
type CorrelateArgs struct {
	ProjectArgs ProjectArgs `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Workflow    string      `json:"workflow,omitempty" jsonschema:"One of general, suspect, domain, location (default general)."`
}

// LinkAddressArgs represents the arguments for the link_address tool
type LinkAddressArgs struct {
	ProjectArgs ProjectArgs        `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Address     string             `json:"address" jsonschema:"The target address."`
	Suspects    []SuspectAssertion `json:"suspects" jsonschema:"Suspects asserted to be connected to the address."`
}

// RankedEntitiesArgs represents the arguments for the ranked_entities tool
type RankedEntitiesArgs struct {
	ProjectArgs ProjectArgs `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Limit       int         `json:"limit,omitempty" jsonschema:"Maximum number of entities to return (0 means all)."`
}

// RankedEntitiesResult is the structured output of ranked_entities
type RankedEntitiesResult struct {
	Entities []RankedEntity `json:"entities"`
}

// LinkedEntitiesArgs represents the arguments for the linked_entities tool
type LinkedEntitiesArgs struct {
	ProjectArgs ProjectArgs `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Name        string      `json:"name" jsonschema:"The entity whose neighbours to list."`
	Type        string      `json:"type,omitempty" jsonschema:"Only return neighbours of this entity type."`
}

// LinkedEntitiesResult is the structured output of linked_entities
type LinkedEntitiesResult struct {
	Entities []LinkedEntity `json:"entities"`
}

// GetEntityArgs represents the arguments for the get_entity tool
type GetEntityArgs struct {
	ProjectArgs ProjectArgs `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Name        string      `json:"name" jsonschema:"The exact entity name."`
}

// SearchEntitiesArgs represents the arguments for the search_entities tool
type SearchEntitiesArgs struct {
	ProjectArgs ProjectArgs `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Query       string      `json:"query" jsonschema:"Substring to look for in entity names."`
	Type        string      `json:"type,omitempty" jsonschema:"Only return entities of this type."`
	Limit       int         `json:"limit,omitempty" jsonschema:"Maximum number of results to return (default 50)."`
}

// EntitiesResult is the structured output of search_entities
type EntitiesResult struct {
	Entities []Entity `json:"entities"`
}

// Health
type HealthArgs struct{}

type HealthResult struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Revision     string `json:"revision"`
	BuildDate    string `json:"buildDate"`
	MultiProject bool   `json:"multiProject"`
}
