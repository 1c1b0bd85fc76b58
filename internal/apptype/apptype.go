package apptype

import "time"

// Well-known entity types. The set is open: parsers may emit any lowercase tag.
const (
	TypeEmail           = "email"
	TypeDomain          = "domain"
	TypeHost            = "host"
	TypeSuspect         = "suspect"
	TypeAddress         = "address"
	TypePhysicalAddress = "physical_address"
)

// Relationship kinds written by the correlator and the manual linker.
const (
	KindSuspectAssociation  = "suspect_association"
	KindDomainAssociation   = "domain_association"
	KindLocationAssociation = "location_association"
	KindAddressAssociation  = "address_association"
)

// Provenance labels used by the built-in workflows.
const (
	SourceCorrelationEngine = "correlation_engine"
	SourceManualCorrelation = "manual_correlation"
	SourceManualInput       = "manual_input"
	SourceUserInput         = "user_input"
)

// ConflictPolicy selects how an upsert treats an existing unique key.
type ConflictPolicy int

const (
	// ConflictIgnore keeps the stored row untouched (first write wins).
	ConflictIgnore ConflictPolicy = iota
	// ConflictReplace overwrites the stored row's mutable columns in place (last write wins).
	ConflictReplace
)

func (p ConflictPolicy) String() string {
	if p == ConflictReplace {
		return "replace"
	}
	return "ignore"
}

// IdentifierRecord is the normalized observation emitted by tool parsers and manual input.
type IdentifierRecord struct {
	Name       string  `json:"name" yaml:"name" validate:"required"`
	Type       string  `json:"type" yaml:"type" validate:"required"`
	SourceTool string  `json:"source_tool" yaml:"source_tool"`
	Confidence float64 `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
}

// Entity is a deduplicated, typed identifier.
type Entity struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name" validate:"required"`
	Type       string         `json:"type" validate:"required"`
	SourceTool string         `json:"source_tool"`
	Confidence float64        `json:"confidence" validate:"gte=0,lte=1"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
}

// Entity converts the record into an unsaved Entity.
func (r IdentifierRecord) Entity() Entity {
	return Entity{
		Name:       r.Name,
		Type:       r.Type,
		SourceTool: r.SourceTool,
		Confidence: r.Confidence,
	}
}

// Relationship is an undirected association between two entities. The store keeps
// Entity1ID < Entity2ID.
type Relationship struct {
	ID               int64          `json:"id"`
	Entity1ID        int64          `json:"entity1_id"`
	Entity2ID        int64          `json:"entity2_id"`
	RelationshipType string         `json:"relationship_type"`
	SourceTool       string         `json:"source_tool"`
	Confidence       float64        `json:"confidence"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at,omitempty"`
}

// RankedEntity pairs an entity with the number of edges touching it.
type RankedEntity struct {
	Entity            Entity `json:"entity"`
	RelationshipCount int    `json:"relationship_count"`
}

// LinkedEntity is one neighbour of a queried entity together with the edge that links them.
type LinkedEntity struct {
	Entity                 Entity         `json:"entity"`
	RelationshipType       string         `json:"relationship_type"`
	Confidence             float64        `json:"confidence"`
	RelationshipMetadata   map[string]any `json:"relationship_metadata,omitempty"`
	RelationshipSourceTool string         `json:"relationship_source_tool"`
}

// SuspectAssertion is one manually declared suspect tied to an address.
type SuspectAssertion struct {
	Name         string  `json:"name" yaml:"name" validate:"required"`
	Relationship string  `json:"relationship" yaml:"relationship"`
	Confidence   float64 `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
}

// RecordFailure describes a record that was skipped during a batch.
type RecordFailure struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// IngestSummary reports the outcome of an entity batch.
type IngestSummary struct {
	Received   int             `json:"received"`
	Inserted   int             `json:"inserted"`
	Duplicates int             `json:"duplicates"`
	Skipped    []RecordFailure `json:"skipped,omitempty"`
}

// CorrelationSummary reports the outcome of one correlator scan.
type CorrelationSummary struct {
	RunID           string          `json:"run_id"`
	Workflow        string          `json:"workflow"`
	EntitiesScanned int             `json:"entities_scanned"`
	PairsEvaluated  int             `json:"pairs_evaluated"`
	Matches         int             `json:"matches"`
	Created         int             `json:"created"`
	Existing        int             `json:"existing"`
	ByKind          map[string]int  `json:"by_kind"`
	Failed          []RecordFailure `json:"failed,omitempty"`
}

// LinkSummary reports the outcome of a manual address correlation.
type LinkSummary struct {
	AddressID int64           `json:"address_id"`
	Linked    int             `json:"linked"`
	Failed    []RecordFailure `json:"failed,omitempty"`
}
