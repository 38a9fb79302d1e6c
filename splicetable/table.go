// Copyright 2026 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package splicetable

import (
	"bufio"
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// leadCols is the fixed leading column set of a splice-table file.  Tool
// column pairs follow; their order records the merge history.
var leadCols = []string{
	"chromosome", "position", "strand", "site_type", "transcript_id", "gene_id", "paralog",
}

const missingField = "NA"

// ToolColumn holds one tool's quantification values, parallel to
// Table.Sites.  A NaN value or zero position marks a site the tool did not
// quantify.
type ToolColumn struct {
	Tool      string
	Metric    string // "psi" or "sse"
	Values    []float64
	Positions []int
}

// Name returns the value column header, e.g. "leafcutter_psi".
func (c *ToolColumn) Name() string { return c.Tool + "_" + c.Metric }

// Table is the canonical splice table: an ordered list of sites plus zero or
// more tool columns appended by successive merge passes.
type Table struct {
	Sites []Site
	Tools []ToolColumn
}

// Chromosomes returns the distinct chromosomes of the table in first-appearance
// order.
func (t *Table) Chromosomes() []string {
	seen := make(map[string]bool)
	var chroms []string
	for i := range t.Sites {
		if c := t.Sites[i].Chrom; !seen[c] {
			seen[c] = true
			chroms = append(chroms, c)
		}
	}
	return chroms
}

// SetTool installs a tool column, replacing any existing column for the same
// tool so that repeating a merge is idempotent.
func (t *Table) SetTool(col ToolColumn) {
	for i := range t.Tools {
		if t.Tools[i].Tool == col.Tool {
			t.Tools[i] = col
			return
		}
	}
	t.Tools = append(t.Tools, col)
}

// Write writes the table in the canonical column order.
func (t *Table) Write(ctx context.Context, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)

	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString(strings.Join(leadCols, "\t"))
	for i := range t.Tools {
		w.WriteString(t.Tools[i].Name())
		w.WriteString(t.Tools[i].Tool + "_position")
	}
	if err = w.EndLine(); err != nil {
		return err
	}
	for i := range t.Sites {
		site := &t.Sites[i]
		w.WriteString(site.Chrom)
		w.WriteUint32(uint32(site.Pos))
		w.WriteByte(site.Strand)
		w.WriteString(site.Type.String())
		w.WriteString(site.TranscriptID)
		w.WriteString(site.GeneID)
		if site.Paralog {
			w.WriteString("1")
		} else {
			w.WriteString("0")
		}
		for j := range t.Tools {
			col := &t.Tools[j]
			if math.IsNaN(col.Values[i]) {
				w.WriteString(missingField)
			} else {
				w.WriteFloat64(col.Values[i], 'g', -1)
			}
			if col.Positions[i] == 0 {
				w.WriteString(missingField)
			} else {
				w.WriteUint32(uint32(col.Positions[i]))
			}
		}
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// parseToolCols validates the tool column pairs of a header and returns the
// empty columns to fill.
func parseToolCols(path string, header []string) ([]ToolColumn, error) {
	rest := header[len(leadCols):]
	if len(rest)%2 != 0 {
		return nil, SchemaMismatchError{path, "tool columns must come in value/position pairs"}
	}
	var tools []ToolColumn
	for i := 0; i < len(rest); i += 2 {
		name := rest[i]
		sep := strings.LastIndexByte(name, '_')
		if sep <= 0 {
			return nil, SchemaMismatchError{path, "unrecognized tool column " + name}
		}
		col := ToolColumn{Tool: name[:sep], Metric: name[sep+1:]}
		if col.Metric != "psi" && col.Metric != "sse" {
			return nil, SchemaMismatchError{path, "unrecognized tool metric in column " + name}
		}
		if want := col.Tool + "_position"; rest[i+1] != want {
			return nil, SchemaMismatchError{path, "expected column " + want + ", got " + rest[i+1]}
		}
		tools = append(tools, col)
	}
	return tools, nil
}

// Read reads a splice-table file.  The leading columns must match leadCols
// exactly; anything else is a SchemaMismatchError.
func Read(ctx context.Context, path string) (t *Table, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)

	scanner := bufio.NewScanner(in.Reader(ctx))
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	if !scanner.Scan() {
		return nil, SchemaMismatchError{path, "empty file"}
	}
	header := strings.Split(scanner.Text(), "\t")
	if len(header) < len(leadCols) {
		return nil, SchemaMismatchError{path, "truncated header"}
	}
	for i, want := range leadCols {
		if header[i] != want {
			return nil, SchemaMismatchError{path, "column " + strconv.Itoa(i+1) + " is " + header[i] + ", want " + want}
		}
	}
	t = &Table{}
	if t.Tools, err = parseToolCols(path, header); err != nil {
		return nil, err
	}

	lineno := 1
	for scanner.Scan() {
		lineno++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != len(header) {
			return nil, SchemaMismatchError{path, "line " + strconv.Itoa(lineno) + ": wrong field count"}
		}
		site, err := parseSiteFields(path, lineno, fields)
		if err != nil {
			return nil, err
		}
		t.Sites = append(t.Sites, site)
		for j := range t.Tools {
			col := &t.Tools[j]
			value, pos := fields[len(leadCols)+2*j], fields[len(leadCols)+2*j+1]
			v := math.NaN()
			if value != missingField {
				if v, err = strconv.ParseFloat(value, 64); err != nil {
					return nil, SchemaMismatchError{path, "line " + strconv.Itoa(lineno) + ": bad " + col.Name() + " value " + value}
				}
			}
			p := 0
			if pos != missingField {
				if p, err = strconv.Atoi(pos); err != nil {
					return nil, SchemaMismatchError{path, "line " + strconv.Itoa(lineno) + ": bad " + col.Tool + "_position value " + pos}
				}
			}
			col.Values = append(col.Values, v)
			col.Positions = append(col.Positions, p)
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func parseSiteFields(path string, lineno int, fields []string) (Site, error) {
	var site Site
	site.Chrom = fields[0]
	pos, err := strconv.Atoi(fields[1])
	if err != nil || pos <= 0 {
		return site, SchemaMismatchError{path, "line " + strconv.Itoa(lineno) + ": bad position " + fields[1]}
	}
	site.Pos = pos
	if fields[2] != "+" && fields[2] != "-" {
		return site, SchemaMismatchError{path, "line " + strconv.Itoa(lineno) + ": bad strand " + fields[2]}
	}
	site.Strand = fields[2][0]
	if site.Type, err = ParseSiteType(fields[3]); err != nil || site.Type == AnySite {
		return site, SchemaMismatchError{path, "line " + strconv.Itoa(lineno) + ": bad site type " + fields[3]}
	}
	site.TranscriptID = fields[4]
	site.GeneID = fields[5]
	switch fields[6] {
	case "0":
	case "1":
		site.Paralog = true
	default:
		return site, SchemaMismatchError{path, "line " + strconv.Itoa(lineno) + ": bad paralog flag " + fields[6]}
	}
	return site, nil
}
