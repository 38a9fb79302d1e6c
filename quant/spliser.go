package quant

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/splice/splicetable"
)

// SpliSER normalizes a combined DiffSpliSER TSV.  The file is already keyed
// by genomic site, so normalization is a rename and type coercion: Region
// becomes the chromosome, Site the position, and each per-sample SSE column
// one record.  SpliSER does not label sites donor vs acceptor, so records
// carry the AnySite type and match either during a merge.
type SpliSER struct {
	Path string
}

// Tool implements Normalizer.
func (*SpliSER) Tool() string { return "spliser" }

// Metric implements Normalizer.
func (*SpliSER) Metric() string { return "sse" }

// Normalize implements Normalizer.
func (s *SpliSER) Normalize(ctx context.Context) (recs []Record, err error) {
	in, err := file.Open(ctx, s.Path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)

	cr := csv.NewReader(in.Reader(ctx))
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, ParseError{Path: s.Path, Message: "empty file"}
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, want := range []string{"Region", "Site", "Strand"} {
		if _, ok := cols[want]; !ok {
			return nil, ParseError{Path: s.Path, Message: "missing column " + want}
		}
	}
	// Sample value columns are named "<sample>.SSE" (alpha/beta read-count
	// columns are ignored).
	type sseCol struct {
		idx    int
		sample string
	}
	var sseCols []sseCol
	for i, name := range header {
		if strings.HasSuffix(name, "SSE") && name != "SSE" {
			sample := strings.TrimRight(strings.TrimSuffix(name, "SSE"), "._")
			sseCols = append(sseCols, sseCol{i, sample})
		}
	}
	if len(sseCols) == 0 {
		return nil, ParseError{Path: s.Path, Message: "no SSE sample columns"}
	}

	lineno := 1
	skippedStrand := 0
	for {
		row, e := cr.Read()
		if e == io.EOF {
			break
		}
		if e != nil {
			return nil, ParseError{Path: s.Path, Line: lineno + 1, Message: e.Error()}
		}
		lineno++
		if len(row) <= cols["Region"] || len(row) <= cols["Site"] || len(row) <= cols["Strand"] {
			return nil, ParseError{Path: s.Path, Line: lineno, Message: "short row"}
		}
		chrom := row[cols["Region"]]
		pos, e := strconv.Atoi(row[cols["Site"]])
		if e != nil {
			return nil, ParseError{Path: s.Path, Line: lineno, Message: "bad Site " + row[cols["Site"]]}
		}
		strandStr := row[cols["Strand"]]
		if strandStr != "+" && strandStr != "-" {
			skippedStrand++
			continue
		}
		for _, c := range sseCols {
			if c.idx >= len(row) {
				return nil, ParseError{Path: s.Path, Line: lineno, Message: "short row"}
			}
			recs = append(recs, Record{
				Chrom:  chrom,
				Pos:    pos,
				Strand: strandStr[0],
				Type:   splicetable.AnySite,
				Value:  parsePSIField(s.Path, lineno, row[c.idx]),
				Sample: c.sample,
			})
		}
	}
	if skippedStrand > 0 {
		log.Error.Printf("spliser: %s: skipped %d unstranded site rows", s.Path, skippedStrand)
	}
	return recs, nil
}
