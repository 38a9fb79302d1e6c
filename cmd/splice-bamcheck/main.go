package main

/*
splice-bamcheck verifies that every BAM in a sample manifest names the splice
table's chromosomes in its header, catching reference-naming mismatches
(chr1 vs 1) before the upstream quantification tools run.
*/

import (
	"flag"
	"fmt"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/splice/bamlist"
	"github.com/grailbio/splice/splicetable"
)

var (
	manifestPath = flag.String("manifest", "", "sample_id<TAB>bam_path manifest (required)")
	tablePath    = flag.String("table", "", "Splice table whose chromosomes must be covered (required)")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if *manifestPath == "" || *tablePath == "" {
		log.Fatalf("-manifest and -table are required")
	}
	ctx := vcontext.Background()

	samples, err := bamlist.ReadManifest(ctx, *manifestPath)
	if err != nil {
		log.Fatalf("read %s: %v", *manifestPath, err)
	}
	table, err := splicetable.Read(ctx, *tablePath)
	if err != nil {
		log.Fatalf("read %s: %v", *tablePath, err)
	}
	missing, err := bamlist.CheckReferences(ctx, samples, table.Chromosomes())
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(missing) == 0 {
		fmt.Printf("splice-bamcheck: %d samples cover all %d chromosomes\n",
			len(samples), len(table.Chromosomes()))
		return
	}
	for _, sample := range samples {
		if lacks, ok := missing[sample.ID]; ok {
			fmt.Printf("%s\t%s\tmissing: %s\n", sample.ID, sample.Path, strings.Join(lacks, ","))
		}
	}
	log.Fatalf("splice-bamcheck: %d of %d samples are missing chromosomes", len(missing), len(samples))
}
