package correlate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/database"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
)

// DefaultSuspectRelationship is recorded when an assertion names no relationship.
const DefaultSuspectRelationship = "associate"

// LinkSuspectsToAddress stores an address and a set of asserted suspects and links every
// suspect to the address as an address_association carrying the suspect's own confidence.
// No name matching is involved. Entities and edges are written with the replace policy so
// a re-run updates metadata in place. The whole batch is one transaction; invalid
// suspects are skipped and reported.
func (c *Correlator) LinkSuspectsToAddress(ctx context.Context, projectName string, address string, suspects []apptype.SuspectAssertion) (apptype.LinkSummary, error) {
	done := metrics.TimeOp("correlate_link_address")
	success := false
	defer func() { done(success) }()

	address = strings.TrimSpace(address)
	if address == "" {
		return apptype.LinkSummary{}, &database.ValidationError{Field: "address", Reason: "must be a non-empty string"}
	}
	stamp := c.now().Format(time.RFC3339)

	var summary apptype.LinkSummary
	err := c.store.Batch(ctx, projectName, func(b *database.Batch) error {
		summary = apptype.LinkSummary{}
		addrID, _, err := b.UpsertEntity(apptype.Entity{
			Name:       address,
			Type:       apptype.TypeAddress,
			SourceTool: apptype.SourceManualInput,
			Confidence: 1.0,
			Metadata: map[string]any{
				"type":         "residential",
				"verified":     true,
				"last_updated": stamp,
			},
		}, apptype.ConflictReplace)
		if err != nil {
			return err
		}
		summary.AddressID = addrID

		for i, s := range suspects {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.Name = strings.TrimSpace(s.Name)
			if err := database.ValidateSuspect(s); err != nil {
				summary.Failed = append(summary.Failed, apptype.RecordFailure{Index: i, Name: s.Name, Reason: err.Error()})
				continue
			}
			// a suspect named like the address would overwrite the address row
			if s.Name == address {
				err := &database.ValidationError{Field: "name", Reason: "suspect name must differ from the address"}
				summary.Failed = append(summary.Failed, apptype.RecordFailure{Index: i, Name: s.Name, Reason: err.Error()})
				continue
			}
			relationship := s.Relationship
			if relationship == "" {
				relationship = DefaultSuspectRelationship
			}
			suspectID, _, err := b.UpsertEntity(apptype.Entity{
				Name:       s.Name,
				Type:       apptype.TypeSuspect,
				SourceTool: apptype.SourceManualInput,
				Confidence: 1.0,
				Metadata: map[string]any{
					"relationship": relationship,
					"verified":     true,
					"last_updated": stamp,
				},
			}, apptype.ConflictReplace)
			if err != nil {
				if database.IsRecordError(err) {
					summary.Failed = append(summary.Failed, apptype.RecordFailure{Index: i, Name: s.Name, Reason: err.Error()})
					continue
				}
				return err
			}
			_, _, err = b.UpsertRelationship(apptype.Relationship{
				Entity1ID:        suspectID,
				Entity2ID:        addrID,
				RelationshipType: apptype.KindAddressAssociation,
				SourceTool:       apptype.SourceManualCorrelation,
				Confidence:       s.Confidence,
				Metadata: map[string]any{
					"type":              relationship,
					"verified":          true,
					"confidence_reason": "manual correlation",
					"last_updated":      stamp,
				},
			}, apptype.ConflictReplace)
			if err != nil {
				if database.IsRecordError(err) {
					summary.Failed = append(summary.Failed, apptype.RecordFailure{Index: i, Name: s.Name, Reason: err.Error()})
					continue
				}
				return err
			}
			summary.Linked++
		}
		return nil
	})
	if err != nil {
		return apptype.LinkSummary{}, fmt.Errorf("failed to link suspects to %q: %w", address, err)
	}
	c.log.Info("Linked suspects to address",
		zap.String("address", address),
		zap.Int("linked", summary.Linked),
		zap.Int("failed", len(summary.Failed)))
	success = true
	return summary, nil
}

// AddSuspects stores user-supplied suspect names. Existing names are left untouched.
func (c *Correlator) AddSuspects(ctx context.Context, projectName string, names []string) (apptype.IngestSummary, error) {
	done := metrics.TimeOp("correlate_add_suspects")
	success := false
	defer func() { done(success) }()

	summary := apptype.IngestSummary{Received: len(names)}
	err := c.store.Batch(ctx, projectName, func(b *database.Batch) error {
		summary = apptype.IngestSummary{Received: len(names)}
		for i, name := range names {
			name = strings.TrimSpace(name)
			_, created, err := b.UpsertEntity(apptype.Entity{
				Name:       name,
				Type:       apptype.TypeSuspect,
				SourceTool: apptype.SourceUserInput,
				Confidence: 1.0,
			}, apptype.ConflictIgnore)
			if err != nil {
				if database.IsRecordError(err) {
					summary.Skipped = append(summary.Skipped, apptype.RecordFailure{Index: i, Name: name, Reason: err.Error()})
					continue
				}
				return err
			}
			if created {
				summary.Inserted++
			} else {
				summary.Duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return apptype.IngestSummary{Received: len(names)}, fmt.Errorf("failed to add suspects: %w", err)
	}
	c.log.Info("Added suspects", zap.Int("inserted", summary.Inserted), zap.Int("duplicates", summary.Duplicates))
	success = true
	return summary, nil
}
