package callwatch

import (
	"strconv"
	"strings"
	"trbowatch/internal/roster"
	"trbowatch/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Layout is the column layout of a call table, offsets are 0-based cell
// indexes within a row.
type Layout struct {
	RadioID int
	Group   int
	Network int
	// AliasID means the radio id cell is an alias whose last word is the id.
	AliasID bool
	// MaxRows caps the number of data rows read, 0 means no cap.
	MaxRows int
}

// PublicLayout is the CallWatch monitor: alias, group name and network in
// columns 4, 5 and 7, bounded to 200 rows.
var PublicLayout = Layout{RadioID: 3, Group: 4, Network: 6, AliasID: true, MaxRows: 200}

// BackendLayout is the backend call table: radio id, group id and network
// in columns 7, 10 and 12.
var BackendLayout = Layout{RadioID: 6, Group: 9, Network: 11}

func (l Layout) minCells() int {
	return max(l.RadioID, l.Group, l.Network) + 1
}

func (l Layout) radioID(cell string) (int64, bool) {
	if l.AliasID {
		words := strings.Fields(cell)
		if len(words) == 0 {
			return 0, false
		}
		cell = words[len(words)-1]
	}
	id, err := strconv.ParseInt(cell, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// firstTable returns the first table of doc, or an empty selection.
func firstTable(doc *goquery.Document) *goquery.Selection {
	return doc.Find("table").First()
}

// ParseTable reads the data rows of table. The first row is the header and
// is skipped, so are rows that are too short or carry no numeric radio id.
func ParseTable(table *goquery.Selection, layout Layout) []roster.Record {
	var records []roster.Record
	minCells := layout.minCells()

	rows := table.Find("tr")
	for i := 1; i < rows.Length(); i++ {
		if layout.MaxRows > 0 && i > layout.MaxRows {
			break
		}

		cells := rows.Eq(i).ChildrenFiltered("td")
		if cells.Length() < minCells {
			continue
		}
		id, ok := layout.radioID(htmlutil.CellText(cells.Get(layout.RadioID)))
		if !ok {
			continue
		}

		records = append(records, roster.Record{
			RadioID: id,
			Group:   htmlutil.CellText(cells.Get(layout.Group)),
			Network: htmlutil.CellText(cells.Get(layout.Network)),
		})
	}

	return records
}
