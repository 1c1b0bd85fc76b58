// Package export renders the entity graph as Maltego import XML and plain-text reports.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/beevik/etree"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

// MaltegoType maps an entity type to its Maltego entity type. Suspects are people; other
// types are capitalized the way Maltego names its built-in entities.
func MaltegoType(entityType string) string {
	if entityType == apptype.TypeSuspect {
		return "maltego.Person"
	}
	return "maltego." + capitalize(entityType)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// FormatConfidence renders a confidence with at least one decimal place (0.8, 1.0).
func FormatConfidence(c float64) string {
	s := strconv.FormatFloat(c, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// BuildMaltego builds the MaltegoMessage document for entities, in the given order.
func BuildMaltego(entities []apptype.Entity) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("MaltegoMessage")
	list := root.CreateElement("MaltegoTransformResponseMessage").CreateElement("Entities")

	for _, e := range entities {
		el := list.CreateElement("Entity")
		el.CreateAttr("Type", MaltegoType(e.Type))
		el.CreateElement("Value").SetText(e.Name)

		fields := el.CreateElement("AdditionalFields")
		source := fields.CreateElement("Field")
		source.CreateAttr("Name", "source_tool")
		source.SetText(e.SourceTool)
		conf := fields.CreateElement("Field")
		conf.CreateAttr("Name", "confidence")
		conf.SetText(FormatConfidence(e.Confidence))
	}
	doc.Indent(2)
	return doc
}

// WriteMaltego writes the Maltego import document for entities to w.
func WriteMaltego(w io.Writer, entities []apptype.Entity) error {
	if _, err := BuildMaltego(entities).WriteTo(w); err != nil {
		return fmt.Errorf("failed to write maltego document: %w", err)
	}
	return nil
}

// RankedToEntities strips the counts from a ranked list, keeping its order.
func RankedToEntities(ranked []apptype.RankedEntity) []apptype.Entity {
	out := make([]apptype.Entity, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Entity)
	}
	return out
}
