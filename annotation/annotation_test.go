package annotation

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const testGTF = `##description: test annotation
chr1	HAVANA	gene	1000	9000	.	+	.	gene_id "G1"; gene_type "protein_coding"; gene_name "ALPHA";
chr1	HAVANA	transcript	1000	9000	.	+	.	gene_id "G1"; transcript_id "T1"; tag "basic"; tag "appris_principal_1";
chr1	HAVANA	exon	1000	1100	.	+	.	gene_id "G1"; transcript_id "T1";
chr1	HAVANA	exon	1500	1600	.	+	.	gene_id "G1"; transcript_id "T1";
chr1	HAVANA	transcript	1000	9500	.	+	.	gene_id "G1"; transcript_id "T2"; tag "appris_principal_5";
chr1	HAVANA	exon	1000	9500	.	+	.	gene_id "G1"; transcript_id "T2";
chr2	HAVANA	gene	100	900	.	-	.	gene_id "G2"; gene_type "lncRNA"; gene_name "BETA";
chr2	HAVANA	transcript	100	900	.	-	.	gene_id "G2"; transcript_id "T3";
chr2	HAVANA	exon	100	900	.	-	.	gene_id "G2"; transcript_id "T3";
`

func writeTestGTF(t *testing.T, dir string) string {
	path := filepath.Join(dir, "test.gtf")
	assert.NoError(t, ioutil.WriteFile(path, []byte(testGTF), 0644))
	return path
}

func TestReadGTF(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	genes, err := ReadGTF(context.Background(), writeTestGTF(t, tempDir))
	assert.NoError(t, err)

	// The lncRNA gene G2 is filtered out.
	assert.EQ(t, len(genes), 1)
	gene := genes[0]
	expect.EQ(t, gene.ID, "G1")
	expect.EQ(t, gene.Name, "ALPHA")
	expect.EQ(t, gene.Chrom, "chr1")
	expect.EQ(t, gene.Strand, byte('+'))
	expect.EQ(t, len(gene.Transcripts()), 2)

	// appris_principal_1 beats appris_principal_5 despite T2's longer span.
	principal := gene.Principal()
	expect.EQ(t, principal.ID, "T1")
	expect.EQ(t, principal.Exons, []Exon{{1000, 1100}, {1500, 1600}})
}

func TestPrincipalTieBreaks(t *testing.T) {
	gene := &Gene{ID: "G", Chrom: "chr1", Strand: '+'}
	gene.AddTranscript(&Transcript{ID: "TB", Start: 100, End: 900})
	gene.AddTranscript(&Transcript{ID: "TA", Start: 100, End: 900})
	gene.AddTranscript(&Transcript{ID: "TC", Start: 100, End: 800})
	// Equal priority: largest end wins, then smallest ID.
	expect.EQ(t, gene.Principal().ID, "TA")

	gene.AddTranscript(&Transcript{ID: "TD", Start: 300, End: 500, apprisPriority: 2})
	expect.EQ(t, gene.Principal().ID, "TD")
}

func TestParseAttrs(t *testing.T) {
	kv := map[string]string{}
	tags := parseAttrs(kv, nil, `gene_id "G1"; tag "basic"; transcript_id "T1"; tag "appris_principal_3";`)
	expect.EQ(t, kv["gene_id"], "G1")
	expect.EQ(t, kv["transcript_id"], "T1")
	expect.EQ(t, tags, []string{"basic", "appris_principal_3"})
	expect.EQ(t, apprisPriority(tags), 3)
	expect.EQ(t, apprisPriority([]string{"basic"}), 6)
}

func TestReadParalogs(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tempDir, "paralogs.txt")
	content := "Gene stable ID version\tHuman paralogue gene stable ID\n" +
		"G1\tG9\n" +
		"G2\t\n"
	assert.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	paralogs, err := ReadParalogs(context.Background(), path)
	assert.NoError(t, err)
	expect.True(t, paralogs["G1"])
	expect.False(t, paralogs["G2"])
}
