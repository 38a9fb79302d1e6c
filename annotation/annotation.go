// Package annotation reads gene annotations from a GENCODE/Ensembl GTF and
// selects the principal transcript of each protein-coding gene.  The splice
// table is built from the exon structure of these principal transcripts.
package annotation

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// Exon is a 1-based, closed genomic interval.
type Exon struct {
	Start int
	End   int
}

// Transcript is one transcript record plus its exons, in ascending
// coordinate order.
type Transcript struct {
	ID     string
	GeneID string
	Start  int
	End    int
	// apprisPriority is 1..5 for appris_principal_1..5 tags, 6 when untagged.
	apprisPriority int
	Exons          []Exon
}

// Gene is one protein-coding gene and its transcripts.
type Gene struct {
	ID      string
	Name    string
	Chrom   string
	Strand  byte
	Start   int
	End     int
	Paralog bool

	transcripts map[string]*Transcript
}

// AddTranscript attaches a transcript to the gene, replacing any previous
// transcript with the same ID.
func (g *Gene) AddTranscript(t *Transcript) {
	if g.transcripts == nil {
		g.transcripts = make(map[string]*Transcript)
	}
	if t.apprisPriority == 0 {
		t.apprisPriority = len(apprisTags) + 1
	}
	g.transcripts[t.ID] = t
}

// Transcripts returns the gene's transcripts in ascending ID order.
func (g *Gene) Transcripts() []*Transcript {
	ts := make([]*Transcript, 0, len(g.transcripts))
	for _, t := range g.transcripts {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
	return ts
}

// Principal returns the principal transcript of the gene, or nil if the gene
// has no transcripts.  The choice is deterministic: lowest APPRIS priority
// (appris_principal_1 wins over _2, and so on; untagged transcripts rank
// last), then largest end coordinate, then smallest start coordinate, then
// smallest transcript ID.
func (g *Gene) Principal() *Transcript {
	var best *Transcript
	for _, t := range g.transcripts {
		if best == nil || principalLess(t, best) {
			best = t
		}
	}
	return best
}

func principalLess(a, b *Transcript) bool {
	if a.apprisPriority != b.apprisPriority {
		return a.apprisPriority < b.apprisPriority
	}
	if a.End != b.End {
		return a.End > b.End
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.ID < b.ID
}

// gtfRecord stores one line of a GTF file.
type gtfRecord struct {
	Chrom   string
	Source  string
	Feature string
	Start   int
	Stop    int
	Score   string // unused, may be "."
	Strand  string
	Frame   string
	Attrs   string
}

func readRawGTF(ctx context.Context, path string) (genes, transcripts, exons []gtfRecord, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, nil, err
	}
	var inr io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(inr, in.Name()); u != nil {
		inr = u
	}
	scanner := tsv.NewReader(bufio.NewReaderSize(inr, 64<<10))
	scanner.Comment = '#'
	scanner.LazyQuotes = true
	var line gtfRecord
	for {
		if err = scanner.Read(&line); err != nil {
			if err != io.EOF {
				err = errors.Wrap(err, path)
				return
			}
			err = nil
			break
		}
		switch line.Feature {
		case "gene":
			genes = append(genes, line)
		case "transcript":
			transcripts = append(transcripts, line)
		case "exon":
			exons = append(exons, line)
		}
	}
	if e := in.Close(ctx); e != nil && err == nil {
		err = e
	}
	return
}

// parseAttrs parses the GTF attribute column into key/value pairs.  The "tag"
// attribute may repeat; all of its values are collected into tags.  The
// passed-in map and slice are reused across calls.
func parseAttrs(kv map[string]string, tags []string, attrs string) []string {
	for k := range kv {
		delete(kv, k)
	}
	tags = tags[:0]
	for _, field := range strings.Split(strings.TrimSpace(attrs), ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		sep := strings.IndexByte(field, ' ')
		if sep < 0 {
			continue
		}
		key := field[:sep]
		val := strings.Trim(field[sep+1:], "\"")
		if key == "tag" {
			tags = append(tags, val)
			continue
		}
		kv[key] = val
	}
	return tags
}

var apprisTags = []string{
	"appris_principal_1",
	"appris_principal_2",
	"appris_principal_3",
	"appris_principal_4",
	"appris_principal_5",
}

func apprisPriority(tags []string) int {
	for i, want := range apprisTags {
		for _, tag := range tags {
			if tag == want {
				return i + 1
			}
		}
	}
	return len(apprisTags) + 1
}

// ReadGTF reads a (possibly gzipped) GTF and returns the protein-coding genes
// with their transcripts and exons attached.  Genes are sorted by gene ID.
// The GTF must list a gene before its transcripts and a transcript before its
// exons, which is how GENCODE and Ensembl sort their releases.
func ReadGTF(ctx context.Context, path string) ([]*Gene, error) {
	log.Printf("annotation: reading %s", path)
	genes, transcripts, exons, err := readRawGTF(ctx, path)
	if err != nil {
		return nil, err
	}
	log.Printf("annotation: %d genes, %d transcripts, %d exons", len(genes), len(transcripts), len(exons))

	records := make(map[string]*Gene)
	kv := map[string]string{}
	var tags []string
	for _, line := range genes {
		tags = parseAttrs(kv, tags, line.Attrs)
		if kv["gene_type"] != "protein_coding" {
			continue
		}
		if line.Strand != "+" && line.Strand != "-" {
			return nil, errors.Errorf("%s: gene %s has strand %q", path, kv["gene_id"], line.Strand)
		}
		gene := &Gene{
			ID:          kv["gene_id"],
			Name:        kv["gene_name"],
			Chrom:       line.Chrom,
			Strand:      line.Strand[0],
			Start:       line.Start,
			End:         line.Stop,
			transcripts: make(map[string]*Transcript),
		}
		records[gene.ID] = gene
	}

	for _, line := range transcripts {
		tags = parseAttrs(kv, tags, line.Attrs)
		gene, ok := records[kv["gene_id"]]
		if !ok {
			continue // non-coding gene
		}
		gene.transcripts[kv["transcript_id"]] = &Transcript{
			ID:             kv["transcript_id"],
			GeneID:         gene.ID,
			Start:          line.Start,
			End:            line.Stop,
			apprisPriority: apprisPriority(tags),
		}
	}

	for _, line := range exons {
		tags = parseAttrs(kv, tags, line.Attrs)
		gene, ok := records[kv["gene_id"]]
		if !ok {
			continue
		}
		transcript, ok := gene.transcripts[kv["transcript_id"]]
		if !ok {
			return nil, errors.Errorf("%s: exon for unknown transcript %s; GTF not sorted properly", path, kv["transcript_id"])
		}
		transcript.Exons = append(transcript.Exons, Exon{Start: line.Start, End: line.Stop})
	}

	sorted := make([]*Gene, 0, len(records))
	for _, gene := range records {
		for _, transcript := range gene.transcripts {
			sort.Slice(transcript.Exons, func(i, j int) bool {
				return transcript.Exons[i].Start < transcript.Exons[j].Start
			})
		}
		sorted = append(sorted, gene)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	log.Printf("annotation: retained %d protein-coding genes", len(sorted))
	return sorted, nil
}
