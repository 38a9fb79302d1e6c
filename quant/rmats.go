package quant

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/splice/splicetable"
)

// RMATS normalizes one rMATS result directory (the five JC event files).
// Each event contributes the splice sites of its inclusion form with the
// event's mean inclusion level, and of its skip form with one minus that
// level.  Exon start columns are 0-based in rMATS output and are shifted to
// the canonical 1-based coordinate; exon end columns are already 1-based.
type RMATS struct {
	Dir string
}

// Tool implements Normalizer.
func (*RMATS) Tool() string { return "rmats" }

// Metric implements Normalizer.
func (*RMATS) Metric() string { return "psi" }

var rmatsEventFiles = []struct {
	event string
	name  string
}{
	{"SE", "SE.MATS.JC.txt"},
	{"MXE", "MXE.MATS.JC.txt"},
	{"A3SS", "A3SS.MATS.JC.txt"},
	{"A5SS", "A5SS.MATS.JC.txt"},
	{"RI", "RI.MATS.JC.txt"},
}

// Normalize implements Normalizer.
func (r *RMATS) Normalize(ctx context.Context) ([]Record, error) {
	sample := filepath.Base(filepath.Clean(r.Dir))
	var recs []Record
	found := 0
	for _, ef := range rmatsEventFiles {
		path := file.Join(r.Dir, ef.name)
		eventRecs, err := parseRMATSEvents(ctx, ef.event, path, sample)
		if err != nil {
			if _, ok := err.(ParseError); ok {
				return nil, err
			}
			log.Printf("rmats: %s: no %s results (%v)", r.Dir, ef.event, err)
			continue
		}
		found++
		recs = append(recs, eventRecs...)
	}
	if found == 0 {
		return nil, ParseError{Path: r.Dir, Message: "no rMATS event files found"}
	}
	return recs, nil
}

// rmatsRow provides header-name access to one event file row.
type rmatsRow struct {
	path   string
	lineno int
	cols   map[string]int
	fields []string
}

func (r *rmatsRow) str(col string) (string, error) {
	i, ok := r.cols[col]
	if !ok || i >= len(r.fields) {
		return "", ParseError{Path: r.path, Line: r.lineno, Message: "missing column " + col}
	}
	return r.fields[i], nil
}

func (r *rmatsRow) pos(col string, zeroBased bool) (int, error) {
	s, err := r.str(col)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, ParseError{Path: r.path, Line: r.lineno, Message: "bad coordinate in column " + col + ": " + s}
	}
	if zeroBased {
		v++
	}
	return v, nil
}

// meanIncLevel averages a comma-separated IncLevel list, skipping NAs.  An
// all-NA list is missing.
func meanIncLevel(path string, lineno int, s string) float64 {
	sum, n := 0.0, 0
	for _, part := range strings.Split(s, ",") {
		v := parsePSIField(path, lineno, part)
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func parseRMATSEvents(ctx context.Context, event, path, sample string) (recs []Record, err error) {
	in, err := file.Open(ctx, path)
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
		return nil, ParseError{Path: path, Message: "empty event file"}
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	row := rmatsRow{path: path, cols: cols}
	lineno := 1
	for {
		fields, e := cr.Read()
		if e == io.EOF {
			break
		}
		if e != nil {
			return nil, ParseError{Path: path, Line: lineno + 1, Message: e.Error()}
		}
		lineno++
		row.lineno = lineno
		row.fields = fields
		eventRecs, e := parseRMATSEvent(event, &row, sample)
		if e != nil {
			return nil, e
		}
		recs = append(recs, eventRecs...)
	}
	return recs, nil
}

// parseRMATSEvent emits the inclusion- and skip-form splice sites of one
// event row, following the site selection rules of each rMATS event type.
func parseRMATSEvent(event string, row *rmatsRow, sample string) ([]Record, error) {
	chrom, err := row.str("chr")
	if err != nil {
		return nil, err
	}
	strandStr, err := row.str("strand")
	if err != nil {
		return nil, err
	}
	if strandStr != "+" && strandStr != "-" {
		return nil, ParseError{Path: row.path, Line: row.lineno, Message: "bad strand " + strandStr}
	}
	strand := strandStr[0]
	incStr, err := row.str("IncLevel1")
	if err != nil {
		return nil, err
	}
	psi := meanIncLevel(row.path, row.lineno, incStr)
	skipPSI := math.NaN()
	if !math.IsNaN(psi) {
		skipPSI = 1 - psi
	}
	plus := strand == '+'

	e := &rmatsEmitter{chrom: chrom, strand: strand, sample: sample, row: row}
	switch event {
	case "SE":
		e.exon("exonStart_0base", "exonEnd", psi)
	case "MXE":
		// The inclusion form keeps the first exon on '+' and the second on
		// '-'; the skip form keeps the other one.
		if plus {
			e.exon("1stExonStart_0base", "1stExonEnd", psi)
			e.exon("2ndExonStart_0base", "2ndExonEnd", skipPSI)
		} else {
			e.exon("2ndExonStart_0base", "2ndExonEnd", psi)
			e.exon("1stExonStart_0base", "1stExonEnd", skipPSI)
		}
	case "A5SS":
		// The long exon boundary shared by both forms has PSI 1; the
		// alternative boundary carries the inclusion level.
		if plus {
			e.exonStart("longExonStart_0base", 1)
			e.exonEnd("longExonEnd", psi)
			e.exonEnd("shortEE", skipPSI)
		} else {
			e.exonStart("longExonStart_0base", psi)
			e.exonEnd("longExonEnd", 1)
			e.exonStart("shortES", skipPSI)
		}
	case "A3SS":
		if plus {
			e.exonStart("longExonStart_0base", psi)
			e.exonEnd("longExonEnd", 1)
			e.exonStart("shortES", skipPSI)
		} else {
			e.exonStart("longExonStart_0base", 1)
			e.exonEnd("longExonEnd", psi)
			e.exonEnd("shortEE", skipPSI)
		}
	case "RI":
		e.exon("riExonStart_0base", "riExonEnd", psi)
		e.exonEnd("upstreamEE", skipPSI)
		e.exonStart("downstreamES", skipPSI)
	default:
		return nil, ParseError{Path: row.path, Message: "unknown event type " + event}
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.recs, nil
}

// rmatsEmitter turns exon boundaries into typed site records.  An exon start
// is an acceptor on '+' and a donor on '-'; an exon end is the opposite.
type rmatsEmitter struct {
	chrom  string
	strand byte
	sample string
	row    *rmatsRow
	recs   []Record
	err    error
}

func (e *rmatsEmitter) emit(pos int, typ splicetable.SiteType, psi float64) {
	e.recs = append(e.recs, Record{
		Chrom:  e.chrom,
		Pos:    pos,
		Strand: e.strand,
		Type:   typ,
		Value:  psi,
		Sample: e.sample,
	})
}

func (e *rmatsEmitter) exonStart(col string, psi float64) {
	if e.err != nil {
		return
	}
	pos, err := e.row.pos(col, strings.HasSuffix(col, "_0base") || col == "shortES" || col == "downstreamES")
	if err != nil {
		e.err = err
		return
	}
	typ := splicetable.Acceptor
	if e.strand == '-' {
		typ = splicetable.Donor
	}
	e.emit(pos, typ, psi)
}

func (e *rmatsEmitter) exonEnd(col string, psi float64) {
	if e.err != nil {
		return
	}
	pos, err := e.row.pos(col, false)
	if err != nil {
		e.err = err
		return
	}
	typ := splicetable.Donor
	if e.strand == '-' {
		typ = splicetable.Acceptor
	}
	e.emit(pos, typ, psi)
}

func (e *rmatsEmitter) exon(startCol, endCol string, psi float64) {
	e.exonStart(startCol, psi)
	e.exonEnd(endCol, psi)
}
