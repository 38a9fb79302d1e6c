// Package quant normalizes the native outputs of the upstream splicing
// quantification tools (LeafCutter, rMATS, SpliSER) into a single per-site
// record schema, so that the table merge never depends on any tool-specific
// format beyond its parse boundary.
package quant

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/splice/splicetable"
	"github.com/pkg/errors"
)

// Record is one quantification value at one splice site, for one sample.  A
// NaN value means the tool reported the site but could not quantify it; that
// is distinct from a true zero PSI/SSE.
type Record struct {
	Chrom  string
	Pos    int // 1-based genomic coordinate
	Strand byte
	Type   splicetable.SiteType
	Value  float64
	Sample string
}

// ParseError reports unreadable upstream tool output.  It aborts that tool's
// normalization pass.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Normalizer converts one tool's raw output into canonical records.  The set
// of implementations is closed; use ForTool to select one by name.
type Normalizer interface {
	// Tool returns the tool name used to label merged table columns.
	Tool() string
	// Metric returns "psi" or "sse".
	Metric() string
	Normalize(ctx context.Context) ([]Record, error)
}

// ForTool returns the normalizer for the named tool reading from path (a
// file for leafcutter and spliser, a result directory for rmats).
func ForTool(tool, path string) (Normalizer, error) {
	switch tool {
	case "leafcutter":
		return &LeafCutter{Path: path}, nil
	case "rmats":
		return &RMATS{Dir: path}, nil
	case "spliser":
		return &SpliSER{Path: path}, nil
	}
	return nil, errors.Errorf("unknown tool %q (want leafcutter, rmats or spliser)", tool)
}

type siteKey struct {
	chrom  string
	pos    int
	strand byte
	typ    splicetable.SiteType
}

// MeanBySite collapses records to one per site, averaging values across
// samples and events while skipping missing values.  A site whose every
// record is missing stays missing.  The result is sorted by chromosome,
// position, type and strand.
func MeanBySite(recs []Record) []Record {
	type acc struct {
		sum float64
		n   int
	}
	sums := make(map[siteKey]*acc)
	for _, r := range recs {
		k := siteKey{r.Chrom, r.Pos, r.Strand, r.Type}
		a := sums[k]
		if a == nil {
			a = &acc{}
			sums[k] = a
		}
		if !math.IsNaN(r.Value) {
			a.sum += r.Value
			a.n++
		}
	}
	out := make([]Record, 0, len(sums))
	for k, a := range sums {
		v := math.NaN()
		if a.n > 0 {
			v = a.sum / float64(a.n)
		}
		out = append(out, Record{Chrom: k.chrom, Pos: k.pos, Strand: k.strand, Type: k.typ, Value: v, Sample: "mean"})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chrom != out[j].Chrom {
			return out[i].Chrom < out[j].Chrom
		}
		if out[i].Pos != out[j].Pos {
			return out[i].Pos < out[j].Pos
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Strand < out[j].Strand
	})
	return out
}

var recordHeader = []string{"chromosome", "position", "strand", "site_type", "value", "sample_id"}

// WriteRecords writes records as the intermediate CSV format.
func WriteRecords(ctx context.Context, path string, recs []Record) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)

	w := csv.NewWriter(out.Writer(ctx))
	if err = w.Write(recordHeader); err != nil {
		return err
	}
	row := make([]string, len(recordHeader))
	for _, r := range recs {
		row[0] = r.Chrom
		row[1] = strconv.Itoa(r.Pos)
		row[2] = string(r.Strand)
		row[3] = r.Type.String()
		if math.IsNaN(r.Value) {
			row[4] = "NA"
		} else {
			row[4] = strconv.FormatFloat(r.Value, 'g', -1, 64)
		}
		row[5] = r.Sample
		if err = w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadRecords reads the intermediate CSV format written by WriteRecords.
func ReadRecords(ctx context.Context, path string) (recs []Record, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)

	r := csv.NewReader(in.Reader(ctx))
	header, err := r.Read()
	if err != nil {
		return nil, ParseError{Path: path, Message: "empty file"}
	}
	if len(header) != len(recordHeader) {
		return nil, ParseError{Path: path, Message: "wrong column count"}
	}
	for i, want := range recordHeader {
		if header[i] != want {
			return nil, ParseError{Path: path, Message: fmt.Sprintf("column %d is %q, want %q", i+1, header[i], want)}
		}
	}
	lineno := 1
	for {
		row, e := r.Read()
		if e == io.EOF {
			break
		}
		if e != nil {
			return nil, ParseError{Path: path, Line: lineno + 1, Message: e.Error()}
		}
		lineno++
		var rec Record
		rec.Chrom = row[0]
		if rec.Pos, e = strconv.Atoi(row[1]); e != nil {
			return nil, ParseError{Path: path, Line: lineno, Message: "bad position " + row[1]}
		}
		if row[2] != "+" && row[2] != "-" {
			return nil, ParseError{Path: path, Line: lineno, Message: "bad strand " + row[2]}
		}
		rec.Strand = row[2][0]
		if rec.Type, e = splicetable.ParseSiteType(row[3]); e != nil {
			return nil, ParseError{Path: path, Line: lineno, Message: e.Error()}
		}
		rec.Value = math.NaN()
		if row[4] != "NA" {
			if rec.Value, e = strconv.ParseFloat(row[4], 64); e != nil {
				return nil, ParseError{Path: path, Line: lineno, Message: "bad value " + row[4]}
			}
		}
		rec.Sample = row[5]
		recs = append(recs, rec)
	}
	return recs, nil
}
