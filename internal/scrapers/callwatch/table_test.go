package callwatch

import (
	"strings"
	"testing"
	"trbowatch/internal/roster"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func parseDoc(t testing.TB, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func TestParseTablePublic(t *testing.T) {
	doc := parseDoc(t, `<table>
<tr><th>Time</th><th>Type</th><th>Slot</th><th>Source</th><th>Target</th><th>Duration</th><th>Network</th></tr>
<tr><td>10:00</td><td>Group</td><td>1</td><td>Alice&nbsp;KX1AA 1001</td><td> MWave </td><td>3s</td><td>AZ-TRBONET</td></tr>
<tr><td>10:01</td><td>Group</td><td>1</td><td>2002</td><td>Local</td><td>5s</td><td>BM</td></tr>
<tr><td>10:02</td><td>Group</td><td>1</td><td>Unknown</td><td>MWave</td><td>1s</td><td>AZ-TRBONET</td></tr>
<tr><td>10:03</td><td>Group</td></tr>
</table>`)

	records := ParseTable(firstTable(doc), PublicLayout)
	diff := cmp.Diff([]roster.Record{
		{RadioID: 1001, Group: "MWave", Network: "AZ-TRBONET"},
		{RadioID: 2002, Group: "Local", Network: "BM"},
	}, records)
	require.Empty(t, diff)
}

func backendRow(id, group, network string) string {
	cells := []string{"1", "2024-05-01", "10:00", "Voice", "1", "Alias", id, "x", "y", group, "z", network}
	return "<tr><td>" + strings.Join(cells, "</td><td>") + "</td></tr>"
}

func TestParseTableBackend(t *testing.T) {
	doc := parseDoc(t, "<table><tr><th>header</th></tr>"+
		backendRow("3003", "310564", "Other")+
		backendRow("abc", "310564", "AZ-TRBONET")+
		"<tr><td>1</td><td>2</td><td>3</td><td>4</td><td>5</td><td>6</td><td>4004</td></tr>"+
		backendRow("1001", "9", "AZ-TRBONET")+
		"</table>")

	records := ParseTable(firstTable(doc), BackendLayout)
	diff := cmp.Diff([]roster.Record{
		{RadioID: 3003, Group: "310564", Network: "Other"},
		{RadioID: 1001, Group: "9", Network: "AZ-TRBONET"},
	}, records)
	require.Empty(t, diff)
}

func TestParseTableMaxRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("<table><tr><th>h</th></tr>")
	for i := 0; i < 5; i++ {
		b.WriteString(backendRow("1001", "9", "AZ-TRBONET"))
	}
	b.WriteString("</table>")

	layout := BackendLayout
	layout.MaxRows = 3
	records := ParseTable(firstTable(parseDoc(t, b.String())), layout)
	require.Len(t, records, 3)
}

func TestParseTableEmpty(t *testing.T) {
	doc := parseDoc(t, `<p>no calls</p>`)
	require.Empty(t, ParseTable(firstTable(doc), PublicLayout))
}

func TestOptionValue(t *testing.T) {
	doc := parseDoc(t, `<select name="selectpagenumber">
<option value="p1">1</option><option value="p2"> 2 </option>
</select>`)

	value, ok := optionValue(doc, pageNumberSelect, "2")
	require.True(t, ok)
	require.Equal(t, "p2", value)

	_, ok = optionValue(doc, pageNumberSelect, "3")
	require.False(t, ok)
}
