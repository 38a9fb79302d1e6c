package quant

import (
	"bufio"
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/splice/splicetable"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// LeafCutter normalizes a gzipped LeafCutter PSI matrix.  Rows are introns
// keyed "chrom:intronStart:intronEnd:clu_N_strand"; columns are samples.
// Each intron's PSI is attributed to both of its boundary splice sites, and
// introns of a cluster sharing a boundary have their PSI summed per sample,
// since they represent alternative usages of the same site.
type LeafCutter struct {
	Path string
}

// Tool implements Normalizer.
func (*LeafCutter) Tool() string { return "leafcutter" }

// Metric implements Normalizer.
func (*LeafCutter) Metric() string { return "psi" }

// Normalize implements Normalizer.
func (l *LeafCutter) Normalize(ctx context.Context) (recs []Record, err error) {
	in, err := file.Open(ctx, l.Path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	gz, err := gzip.NewReader(in.Reader(ctx))
	if err != nil {
		return nil, ParseError{Path: l.Path, Message: "not a gzip stream: " + err.Error()}
	}
	defer func() {
		if e := gz.Close(); e != nil && err == nil {
			err = e
		}
	}()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
	if !scanner.Scan() {
		return nil, ParseError{Path: l.Path, Message: "empty file"}
	}
	samples := strings.Fields(scanner.Text())
	if len(samples) == 0 {
		return nil, ParseError{Path: l.Path, Message: "header has no sample columns"}
	}

	sums := newSiteSampleSums()
	lineno := 1
	skippedStrand := 0
	for scanner.Scan() {
		lineno++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if lineno == 2 && len(fields) == len(samples) {
			// The header named the intron column too.
			samples = samples[1:]
		}
		if len(fields) != len(samples)+1 {
			return nil, ParseError{Path: l.Path, Line: lineno, Message: "row has " + strconv.Itoa(len(fields)-1) + " values for " + strconv.Itoa(len(samples)) + " samples"}
		}
		chrom, intronStart, intronEnd, strand, e := parseIntronKey(fields[0])
		if e != nil {
			return nil, ParseError{Path: l.Path, Line: lineno, Message: e.Error()}
		}
		if strand != '+' && strand != '-' {
			// LeafCutter marks unstranded clusters with '?'.
			skippedStrand++
			continue
		}
		// Intron boundaries to exon boundaries, then to donor/acceptor.
		exonEnd := intronStart - 1
		exonStart := intronEnd + 1
		donorPos, acceptorPos := exonEnd, exonStart
		if strand == '-' {
			donorPos, acceptorPos = exonStart, exonEnd
		}
		for i, sample := range samples {
			v := parsePSIField(l.Path, lineno, fields[i+1])
			sums.add(Record{Chrom: chrom, Pos: donorPos, Strand: strand, Type: splicetable.Donor, Value: v, Sample: sample})
			sums.add(Record{Chrom: chrom, Pos: acceptorPos, Strand: strand, Type: splicetable.Acceptor, Value: v, Sample: sample})
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	if skippedStrand > 0 {
		log.Error.Printf("leafcutter: %s: skipped %d unstranded intron rows", l.Path, skippedStrand)
	}
	return sums.records(), nil
}

// parseIntronKey splits "chr1:1000:2000:clu_3_+" into its parts.  Some
// LeafCutter versions emit "chr1:1000:2000:clu_3_?_+"-style keys; only the
// last character decides the strand.
func parseIntronKey(key string) (chrom string, start, end int, strand byte, err error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		return "", 0, 0, 0, errors.Errorf("bad intron key %q", key)
	}
	chrom = parts[0]
	if start, err = strconv.Atoi(parts[1]); err != nil {
		return "", 0, 0, 0, errors.Errorf("bad intron start in key %q", key)
	}
	if end, err = strconv.Atoi(parts[2]); err != nil {
		return "", 0, 0, 0, errors.Errorf("bad intron end in key %q", key)
	}
	cluster := parts[3]
	if cluster == "" {
		return "", 0, 0, 0, errors.Errorf("empty cluster in key %q", key)
	}
	strand = cluster[len(cluster)-1]
	return chrom, start, end, strand, nil
}

// parsePSIField coerces a PSI cell to a float, treating "NA" and garbage as
// missing (NaN), never as zero.
func parsePSIField(path string, lineno int, s string) float64 {
	if s == "NA" || s == "" || s == "." {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Error.Printf("%s:%d: unparseable PSI %q treated as missing", path, lineno, s)
		return math.NaN()
	}
	return v
}

type sampleSiteKey struct {
	site   siteKey
	sample string
}

// siteSampleSums accumulates per-(site, sample) PSI sums in first-appearance
// order.  A sum over only-missing values stays missing.
type siteSampleSums struct {
	order []sampleSiteKey
	sums  map[sampleSiteKey]float64
	seen  map[sampleSiteKey]bool // true once a non-missing value arrived
}

func newSiteSampleSums() *siteSampleSums {
	return &siteSampleSums{
		sums: make(map[sampleSiteKey]float64),
		seen: make(map[sampleSiteKey]bool),
	}
}

func (s *siteSampleSums) add(r Record) {
	k := sampleSiteKey{siteKey{r.Chrom, r.Pos, r.Strand, r.Type}, r.Sample}
	if _, ok := s.sums[k]; !ok {
		s.order = append(s.order, k)
		s.sums[k] = 0
	}
	if !math.IsNaN(r.Value) {
		s.sums[k] += r.Value
		s.seen[k] = true
	}
}

func (s *siteSampleSums) records() []Record {
	recs := make([]Record, 0, len(s.order))
	for _, k := range s.order {
		v := math.NaN()
		if s.seen[k] {
			v = s.sums[k]
		}
		recs = append(recs, Record{
			Chrom:  k.site.chrom,
			Pos:    k.site.pos,
			Strand: k.site.strand,
			Type:   k.site.typ,
			Value:  v,
			Sample: k.sample,
		})
	}
	return recs
}
