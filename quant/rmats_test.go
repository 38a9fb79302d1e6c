package quant

import (
	"context"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/splice/splicetable"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func writeEventFile(t *testing.T, dir, name string, header, rows []string) {
	content := ""
	for _, line := range append([]string{join(header)}, rows...) {
		content += line + "\n"
	}
	assert.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func join(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += "\t"
		}
		out += f
	}
	return out
}

func TestRMATSNormalizeSE(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	dir := filepath.Join(tempDir, "sampleA")
	assert.NoError(t, os.Mkdir(dir, 0755))

	header := []string{"ID", "geneSymbol", "chr", "strand", "exonStart_0base", "exonEnd", "IncLevel1", "FDR"}
	writeEventFile(t, dir, "SE.MATS.JC.txt", header, []string{
		join([]string{"1", "ALPHA", "chr1", "+", "999", "1100", "0.6,NA,0.8", "0.01"}),
		join([]string{"2", "BETA", "chr1", "-", "1999", "2100", "NA,NA", "0.5"}),
	})

	r := &RMATS{Dir: dir}
	expect.EQ(t, r.Tool(), "rmats")
	recs, err := r.Normalize(context.Background())
	assert.NoError(t, err)
	expect.EQ(t, len(recs), 4)

	// Plus strand: the 0-based exon start becomes the 1-based acceptor at
	// 1000, the exon end the donor at 1100.  PSI is the NA-skipping mean.
	acceptor := findRecord(recs, 1000, splicetable.Acceptor, "sampleA")
	assert.True(t, acceptor != nil)
	expect.EQ(t, acceptor.Strand, byte('+'))
	expect.True(t, math.Abs(acceptor.Value-0.7) < 1e-12)
	donor := findRecord(recs, 1100, splicetable.Donor, "sampleA")
	assert.True(t, donor != nil)

	// Minus strand: roles invert, and an all-NA IncLevel stays missing.
	donor2 := findRecord(recs, 2000, splicetable.Donor, "sampleA")
	assert.True(t, donor2 != nil)
	expect.True(t, math.IsNaN(donor2.Value))
	expect.True(t, math.IsNaN(findRecord(recs, 2100, splicetable.Acceptor, "sampleA").Value))
}

func TestRMATSNormalizeRI(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	dir := filepath.Join(tempDir, "sampleB")
	assert.NoError(t, os.Mkdir(dir, 0755))

	header := []string{"ID", "geneSymbol", "chr", "strand", "riExonStart_0base", "riExonEnd",
		"upstreamEE", "downstreamES", "IncLevel1", "FDR"}
	writeEventFile(t, dir, "RI.MATS.JC.txt", header, []string{
		join([]string{"1", "GAMMA", "chr2", "+", "499", "900", "600", "799", "0.25", "0.1"}),
	})

	recs, err := (&RMATS{Dir: dir}).Normalize(context.Background())
	assert.NoError(t, err)
	expect.EQ(t, len(recs), 4)

	// Inclusion form: the retained-intron exon boundaries carry PSI.
	expect.EQ(t, findRecord(recs, 500, splicetable.Acceptor, "sampleB").Value, 0.25)
	expect.EQ(t, findRecord(recs, 900, splicetable.Donor, "sampleB").Value, 0.25)
	// Skip form: the flanking exon boundaries carry 1 - PSI.
	expect.EQ(t, findRecord(recs, 600, splicetable.Donor, "sampleB").Value, 0.75)
	expect.EQ(t, findRecord(recs, 800, splicetable.Acceptor, "sampleB").Value, 0.75)
}

func TestRMATSEmptyDir(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	_, err := (&RMATS{Dir: tempDir}).Normalize(context.Background())
	_, ok := err.(ParseError)
	expect.True(t, ok)
}

func TestMeanIncLevel(t *testing.T) {
	expect.EQ(t, meanIncLevel("f", 1, "0.5"), 0.5)
	expect.EQ(t, meanIncLevel("f", 1, "0.25,0.75"), 0.5)
	expect.EQ(t, meanIncLevel("f", 1, "0.5,NA"), 0.5)
	expect.True(t, math.IsNaN(meanIncLevel("f", 1, "NA,NA")))
}
