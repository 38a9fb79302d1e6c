package bamlist

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestReadManifest(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tempDir, "samples.tsv")
	content := "# sample manifest\n" +
		"s1\t/data/s1.bam\n" +
		"\n" +
		"s2\t/data/s2.bam\n"
	assert.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))

	ctx := context.Background()
	samples, err := ReadManifest(ctx, path)
	assert.NoError(t, err)
	assert.EQ(t, len(samples), 2)
	expect.EQ(t, samples[0], Sample{ID: "s1", Path: "/data/s1.bam"})
	expect.EQ(t, samples[1], Sample{ID: "s2", Path: "/data/s2.bam"})

	assert.NoError(t, ioutil.WriteFile(path, []byte("s1\t/a.bam\ns1\t/b.bam\n"), 0644))
	_, err = ReadManifest(ctx, path)
	expect.True(t, err != nil)

	assert.NoError(t, ioutil.WriteFile(path, []byte("justonefield\n"), 0644))
	_, err = ReadManifest(ctx, path)
	expect.True(t, err != nil)
}

// writeBAM writes an empty BAM whose header names the given references.
func writeBAM(t *testing.T, path string, refNames []string) {
	refs := make([]*sam.Reference, len(refNames))
	for i, name := range refNames {
		ref, err := sam.NewReference(name, "", "", 1000, nil, nil)
		assert.NoError(t, err)
		refs[i] = ref
	}
	header, err := sam.NewHeader(nil, refs)
	assert.NoError(t, err)
	out, err := os.Create(path)
	assert.NoError(t, err)
	w, err := bam.NewWriter(out, header, 1)
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close())
}

func TestCheckReferences(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	full := filepath.Join(tempDir, "full.bam")
	partial := filepath.Join(tempDir, "partial.bam")
	writeBAM(t, full, []string{"chr1", "chr2", "chr3"})
	writeBAM(t, partial, []string{"chr1"})

	ctx := context.Background()
	samples := []Sample{
		{ID: "full", Path: full},
		{ID: "partial", Path: partial},
	}
	missing, err := CheckReferences(ctx, samples, []string{"chr1", "chr2"})
	assert.NoError(t, err)
	assert.EQ(t, len(missing), 1)
	expect.EQ(t, missing["partial"], []string{"chr2"})

	_, err = CheckReferences(ctx, []Sample{{ID: "gone", Path: filepath.Join(tempDir, "nope.bam")}}, []string{"chr1"})
	expect.True(t, err != nil)
}
