package parsers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

func TestHarvester(t *testing.T) {
	in := `{"emails":["alice@example.com"," ","bob@example.com"],"hosts":["mail.example.com"],"ips":["10.0.0.1"]}`
	records, err := Harvester(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, apptype.IdentifierRecord{Name: "alice@example.com", Type: "email", SourceTool: ToolHarvester, Confidence: 0.8}, records[0])
	assert.Equal(t, "bob@example.com", records[1].Name)
	assert.Equal(t, apptype.TypeDomain, records[2].Type)
	assert.Equal(t, "mail.example.com", records[2].Name)

	_, err = Harvester(strings.NewReader(`{"emails":`))
	assert.Error(t, err)

	empty, err := Harvester(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReconNG(t *testing.T) {
	in := "host,ip_address,region\nmail.example.com,10.0.0.2,\nvpn.example.com,10.0.0.3,eu\n,10.0.0.4,\n"
	records, err := ReconNG(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, apptype.IdentifierRecord{Name: "mail.example.com", Type: "host", SourceTool: ToolReconNG, Confidence: 0.7}, records[0])
	assert.Equal(t, "vpn.example.com", records[1].Name)

	none, err := ReconNG(strings.NewReader("ip_address\n10.0.0.1\n"))
	require.NoError(t, err)
	assert.Empty(t, none)

	none, err = ReconNG(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSpiderFoot(t *testing.T) {
	in := strings.Join([]string{
		"# SpiderFoot export",
		"EMAILADDR,carol@example.com,sfp_email",
		"INTERNET_NAME, www.example.com ,sfp_dns,extra",
		"DOMAIN_NAME,example.com",
		"no commas here",
		"",
	}, "\n")
	records, err := SpiderFoot(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, apptype.IdentifierRecord{Name: "carol@example.com", Type: "emailaddr", SourceTool: ToolSpiderFoot, Confidence: 0.6}, records[0])
	assert.Equal(t, "www.example.com", records[1].Name)
	assert.Equal(t, "internet_name", records[1].Type)
}

func TestDetectAndForFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	_, tool, err := Detect("/x/example.com_harvester.json")
	require.NoError(t, err)
	assert.Equal(t, ToolHarvester, tool)
	_, tool, err = Detect("RECON_hosts.CSV")
	require.NoError(t, err)
	assert.Equal(t, ToolReconNG, tool)
	_, tool, err = Detect("spiderfoot_recon.csv")
	require.NoError(t, err)
	assert.Equal(t, ToolSpiderFoot, tool)
	_, _, err = Detect("notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	p := write("example_harvester.json", `{"emails":["a@example.com"]}`)
	records, err := ForFile(p)
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = ForFile(filepath.Join(dir, "missing_harvester.json"))
	assert.Error(t, err)
}
