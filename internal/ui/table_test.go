package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRender(t *testing.T) {
	tbl := NewTable(Column{Title: "ID", Width: 4}, Column{Title: "Name"})
	tbl.AddRow("1", "Ethereum")
	tbl.AddRow("56", ChainName("BNB Smart Chain"))

	lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[0], "Name")
	assert.Contains(t, lines[1], "─")
	assert.True(t, strings.HasPrefix(lines[2], "1     Ethereum"), "got %q", lines[2])
	assert.Contains(t, lines[3], "BNB Smart Chain")
}

func TestTableShortRow(t *testing.T) {
	tbl := NewTable(Column{Title: "A"}, Column{Title: "B"})
	tbl.AddRow("only")
	assert.Contains(t, tbl.Render(), "only")
}

func TestKeyValueBlock(t *testing.T) {
	result := KeyValueBlock("Wallet", [][2]string{
		{"Connector", "metamask"},
		{"Chain", "56"},
	})
	assert.Contains(t, result, "Wallet")
	assert.Contains(t, result, "metamask")
	assert.Less(t, strings.Index(result, "Connector"), strings.Index(result, "Chain"))
}
