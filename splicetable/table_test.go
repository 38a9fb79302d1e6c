package splicetable

import (
	"context"
	"io/ioutil"
	"math"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *Table {
	return &Table{
		Sites: []Site{
			{Chrom: "chr1", Pos: 1100, Strand: '+', Type: Donor, TranscriptID: "T1", GeneID: "G1"},
			{Chrom: "chr1", Pos: 1500, Strand: '+', Type: Acceptor, TranscriptID: "T1", GeneID: "G1"},
			{Chrom: "chr2", Pos: 300, Strand: '-', Type: Donor, TranscriptID: "T2", GeneID: "G2", Paralog: true},
		},
		Tools: []ToolColumn{{
			Tool:      "leafcutter",
			Metric:    "psi",
			Values:    []float64{0.8, math.NaN(), 0.25},
			Positions: []int{1100, 0, 301},
		}},
	}
}

func TestTableRoundTrip(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	path := filepath.Join(tempDir, "table.tsv")

	want := testTable()
	require.NoError(t, want.Write(ctx, path))
	got, err := Read(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, want.Sites, got.Sites)
	require.Len(t, got.Tools, 1)
	gotCol, wantCol := got.Tools[0], want.Tools[0]
	assert.Equal(t, wantCol.Tool, gotCol.Tool)
	assert.Equal(t, wantCol.Metric, gotCol.Metric)
	assert.Equal(t, wantCol.Positions, gotCol.Positions)
	require.Len(t, gotCol.Values, 3)
	assert.Equal(t, 0.8, gotCol.Values[0])
	assert.True(t, math.IsNaN(gotCol.Values[1]))
	assert.Equal(t, 0.25, gotCol.Values[2])

	assert.Equal(t, []string{"chr1", "chr2"}, got.Chromosomes())
}

func TestReadSchemaMismatch(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	write := func(name, content string) string {
		path := filepath.Join(tempDir, name)
		require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
		return path
	}

	// Reordered leading columns.
	_, err := Read(ctx, write("reordered.tsv",
		"position\tchromosome\tstrand\tsite_type\ttranscript_id\tgene_id\tparalog\n"))
	assert.IsType(t, SchemaMismatchError{}, err)

	// Tool value column without its position column.
	_, err = Read(ctx, write("odd.tsv",
		"chromosome\tposition\tstrand\tsite_type\ttranscript_id\tgene_id\tparalog\tleafcutter_psi\n"))
	assert.IsType(t, SchemaMismatchError{}, err)

	// Row with the wrong field count.
	_, err = Read(ctx, write("short.tsv",
		"chromosome\tposition\tstrand\tsite_type\ttranscript_id\tgene_id\tparalog\n"+
			"chr1\t100\t+\tdonor\tT1\tG1\n"))
	assert.IsType(t, SchemaMismatchError{}, err)
}

func TestSetToolReplaces(t *testing.T) {
	table := testTable()
	table.SetTool(ToolColumn{Tool: "leafcutter", Metric: "psi",
		Values: []float64{0.1, 0.2, 0.3}, Positions: []int{1100, 1500, 300}})
	assert.Len(t, table.Tools, 1)
	assert.Equal(t, 0.1, table.Tools[0].Values[0])
	table.SetTool(ToolColumn{Tool: "spliser", Metric: "sse",
		Values: []float64{0.5, 0.5, 0.5}, Positions: []int{1100, 1500, 300}})
	assert.Len(t, table.Tools, 2)
}
