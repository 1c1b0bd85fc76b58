package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

const timestampLayout = "2006-01-02 15:04:05"

var (
	heavyRule  = strings.Repeat("=", 50)
	mediumRule = strings.Repeat("-", 30)
	lightRule  = strings.Repeat("-", 20)
)

// WriteReport renders the ranked entity list as the plain-text correlation report.
func WriteReport(w io.Writer, ranked []apptype.RankedEntity, now time.Time) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Multi-Tool Correlation Report\n%s\n\n", heavyRule)
	fmt.Fprintf(bw, "Generated: %s\n\n", now.Format(timestampLayout))
	fmt.Fprintf(bw, "Entities by Relationship Count:\n%s\n", mediumRule)
	for _, r := range ranked {
		fmt.Fprintf(bw, "Name: %s\n", r.Entity.Name)
		fmt.Fprintf(bw, "Type: %s\n", r.Entity.Type)
		fmt.Fprintf(bw, "Source: %s\n", r.Entity.SourceTool)
		fmt.Fprintf(bw, "Confidence: %s\n", FormatConfidence(r.Entity.Confidence))
		fmt.Fprintf(bw, "Relationships: %d\n", r.RelationshipCount)
		fmt.Fprintf(bw, "%s\n", lightRule)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteAddressReport renders the suspects linked to one address.
func WriteAddressReport(w io.Writer, address apptype.Entity, linked []apptype.LinkedEntity, now time.Time) error {
	details := "{}"
	if len(address.Metadata) > 0 {
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(address.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode address details: %w", err)
		}
		details = string(b)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Address Correlation Report\n%s\n\n", heavyRule)
	fmt.Fprintf(bw, "Generated: %s\n\n", now.Format(timestampLayout))
	fmt.Fprintf(bw, "Target Address:\nAddress: %s\nDetails: %s\n\n", address.Name, details)
	fmt.Fprintf(bw, "Associated Suspects:\n%s\n\n", mediumRule)
	for _, le := range linked {
		fmt.Fprintf(bw, "Name: %s\n", le.Entity.Name)
		fmt.Fprintf(bw, "Relationship: %s\n", metaString(le.RelationshipMetadata, "type", le.RelationshipType))
		fmt.Fprintf(bw, "Confidence: %s\n", FormatConfidence(le.Confidence))
		fmt.Fprintf(bw, "Verification Status: %s\n", metaString(le.RelationshipMetadata, "verified", "false"))
		fmt.Fprintf(bw, "Last Updated: %s\n", metaString(le.RelationshipMetadata, "last_updated", "unknown"))
		fmt.Fprintf(bw, "%s\n", lightRule)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write address report: %w", err)
	}
	return nil
}

func metaString(md map[string]any, key, fallback string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return fallback
	}
	return fmt.Sprint(v)
}
