package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func TestWriteReport(t *testing.T) {
	ranked := []apptype.RankedEntity{
		{Entity: apptype.Entity{Name: "example.com", Type: "domain", SourceTool: "theharvester", Confidence: 0.8}, RelationshipCount: 2},
		{Entity: apptype.Entity{Name: "lonely.org", Type: "domain", SourceTool: "recon-ng", Confidence: 0.7}, RelationshipCount: 0},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, ranked, fixedNow))

	want := strings.Join([]string{
		"Multi-Tool Correlation Report",
		strings.Repeat("=", 50),
		"",
		"Generated: 2026-03-04 05:06:07",
		"",
		"Entities by Relationship Count:",
		strings.Repeat("-", 30),
		"Name: example.com",
		"Type: domain",
		"Source: theharvester",
		"Confidence: 0.8",
		"Relationships: 2",
		strings.Repeat("-", 20),
		"Name: lonely.org",
		"Type: domain",
		"Source: recon-ng",
		"Confidence: 0.7",
		"Relationships: 0",
		strings.Repeat("-", 20),
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWriteAddressReport(t *testing.T) {
	address := apptype.Entity{
		Name:     "123 Main St",
		Type:     "address",
		Metadata: map[string]any{"verified": true, "type": "residential"},
	}
	linked := []apptype.LinkedEntity{
		{
			Entity:               apptype.Entity{Name: "a", Type: "suspect"},
			RelationshipType:     apptype.KindAddressAssociation,
			Confidence:           0.95,
			RelationshipMetadata: map[string]any{"type": "resident", "verified": true, "last_updated": "2026-01-02T03:04:05Z"},
		},
		{
			Entity:           apptype.Entity{Name: "b", Type: "suspect"},
			RelationshipType: apptype.KindAddressAssociation,
			Confidence:       0.4,
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteAddressReport(&buf, address, linked, fixedNow))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Address Correlation Report\n"))
	assert.Contains(t, out, "Target Address:\nAddress: 123 Main St\nDetails: {\"type\":\"residential\",\"verified\":true}\n\n")
	assert.Contains(t, out, "Name: a\nRelationship: resident\nConfidence: 0.95\nVerification Status: true\nLast Updated: 2026-01-02T03:04:05Z\n")
	assert.Contains(t, out, "Name: b\nRelationship: address_association\nConfidence: 0.4\nVerification Status: false\nLast Updated: unknown\n")
}
