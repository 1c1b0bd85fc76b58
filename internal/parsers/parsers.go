// Package parsers turns native reconnaissance tool output into identifier records.
package parsers

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

// Tool names recorded as source_tool.
const (
	ToolHarvester  = "theharvester"
	ToolReconNG    = "recon-ng"
	ToolSpiderFoot = "spiderfoot"
)

// Confidence assigned to each tool's observations.
const (
	HarvesterConfidence  = 0.8
	ReconNGConfidence    = 0.7
	SpiderFootConfidence = 0.6
)

// ErrUnsupportedFile is returned by ForFile when no parser claims the file name.
var ErrUnsupportedFile = errors.New("no parser for file")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Parser reads one tool's output format.
type Parser func(r io.Reader) ([]apptype.IdentifierRecord, error)

type harvesterOutput struct {
	Emails []string `json:"emails"`
	Hosts  []string `json:"hosts"`
}

// Harvester parses theHarvester JSON output. Emails become email records and hosts become
// domain records.
func Harvester(r io.Reader) ([]apptype.IdentifierRecord, error) {
	var out harvesterOutput
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode theHarvester output: %w", err)
	}
	records := make([]apptype.IdentifierRecord, 0, len(out.Emails)+len(out.Hosts))
	for _, email := range out.Emails {
		records = appendRecord(records, email, apptype.TypeEmail, ToolHarvester, HarvesterConfidence)
	}
	for _, host := range out.Hosts {
		records = appendRecord(records, host, apptype.TypeDomain, ToolHarvester, HarvesterConfidence)
	}
	return records, nil
}

// ReconNG parses a recon-ng hosts CSV export. Only the "host" column is used; a file
// without that column yields no records.
func ReconNG(r io.Reader) ([]apptype.IdentifierRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recon-ng header: %w", err)
	}
	hostCol := -1
	for i, h := range header {
		if strings.TrimSpace(h) == "host" {
			hostCol = i
			break
		}
	}
	if hostCol < 0 {
		return nil, nil
	}

	var records []apptype.IdentifierRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read recon-ng row: %w", err)
		}
		if hostCol >= len(row) {
			continue
		}
		records = appendRecord(records, row[hostCol], apptype.TypeHost, ToolReconNG, ReconNGConfidence)
	}
	return records, nil
}

// SpiderFoot parses SpiderFoot CSV lines of the form "type,value,...". Lines starting with
// '#' and lines with fewer than three fields are skipped. The type is lowercased.
func SpiderFoot(r io.Reader) ([]apptype.IdentifierRecord, error) {
	var records []apptype.IdentifierRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || !strings.Contains(line, ",") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		typ := strings.ToLower(strings.TrimSpace(parts[0]))
		records = appendRecord(records, parts[1], typ, ToolSpiderFoot, SpiderFootConfidence)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read SpiderFoot output: %w", err)
	}
	return records, nil
}

func appendRecord(records []apptype.IdentifierRecord, name, typ, tool string, confidence float64) []apptype.IdentifierRecord {
	name = strings.TrimSpace(name)
	if name == "" || typ == "" {
		return records
	}
	return append(records, apptype.IdentifierRecord{Name: name, Type: typ, SourceTool: tool, Confidence: confidence})
}

// Detect picks a parser from the file name: *harvester*.json, *recon*.csv or
// *spiderfoot*.csv (case-insensitive). It returns the tool name alongside the parser.
func Detect(path string) (Parser, string, error) {
	base := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(base)
	switch {
	case ext == ".json" && strings.Contains(base, "harvester"):
		return Harvester, ToolHarvester, nil
	case ext == ".csv" && strings.Contains(base, "spiderfoot"):
		return SpiderFoot, ToolSpiderFoot, nil
	case ext == ".csv" && strings.Contains(base, "recon"):
		return ReconNG, ToolReconNG, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
}

// ForFile opens path and parses it with the parser chosen by Detect.
func ForFile(path string) ([]apptype.IdentifierRecord, error) {
	parse, _, err := Detect(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}
