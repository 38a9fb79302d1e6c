package main

/*
splice-table builds the canonical splice-site table from a GENCODE/Ensembl
GTF: one donor and one acceptor row per adjacent exon pair of the principal
transcript of each protein-coding gene.  The table is the join target of the
splice-merge passes.
*/

import (
	"flag"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/splice/annotation"
	"github.com/grailbio/splice/splicetable"
)

var (
	gtfPath     = flag.String("gtf", "", "Input GTF path, possibly gzipped (required)")
	paralogPath = flag.String("paralogs", "", "Optional BioMart paralog export; marks genes with known human paralogs")
	outPath     = flag.String("out", "splice_table.tsv", "Output splice table path")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if *gtfPath == "" {
		log.Fatalf("-gtf is required")
	}
	ctx := vcontext.Background()

	genes, err := annotation.ReadGTF(ctx, *gtfPath)
	if err != nil {
		log.Fatalf("read %s: %v", *gtfPath, err)
	}
	var paralogs map[string]bool
	if *paralogPath != "" {
		if paralogs, err = annotation.ReadParalogs(ctx, *paralogPath); err != nil {
			log.Fatalf("read %s: %v", *paralogPath, err)
		}
	}
	table, stats := splicetable.Build(genes, paralogs)
	if err := table.Write(ctx, *outPath); err != nil {
		log.Fatalf("write %s: %v", *outPath, err)
	}
	log.Printf("splice-table: %d sites from %d genes (%d malformed transcripts skipped) -> %s",
		stats.Sites, stats.Genes, stats.SkippedTranscripts, *outPath)
}
