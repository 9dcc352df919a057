package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestNormalizeText(t *testing.T) {
	require.Equal(t, "N7ABC Joe 3141592", NormalizeText("  N7ABC  Joe\n\t3141592\u00a0\u200b"))
	require.Equal(t, "", NormalizeText(" \n "))
}

func TestCellText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<table><tr><td> <b>AZ-</b>TRBONET
	</td></tr></table>`))
	require.NoError(t, err)

	var td *html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "td" {
			td = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)

	require.NotNil(t, td)
	require.Equal(t, "AZ-TRBONET", CellText(td))
}
