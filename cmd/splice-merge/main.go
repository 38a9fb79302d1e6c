package main

/*
splice-merge normalizes one upstream tool's raw output into canonical
per-site records and joins them onto a splice table, appending one value and
one matched-position column for the tool.  Run once per tool; columns
accumulate across runs.  The exit status reflects whether the output is
complete: any normalization or merge failure aborts before the table is
rewritten.
*/

import (
	"flag"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/splice/merge"
	"github.com/grailbio/splice/quant"
	"github.com/grailbio/splice/splicetable"
)

var (
	tool        = flag.String("tool", "", "Upstream tool: leafcutter, rmats or spliser (required)")
	inPath      = flag.String("in", "", "Raw tool output: LeafCutter gzipped PSI matrix, rMATS result directory, or SpliSER combined TSV (required)")
	tablePath   = flag.String("table", "", "Input splice table path (required)")
	outPath     = flag.String("out", "", "Output splice table path; defaults to overwriting -table")
	recordsOut  = flag.String("records-out", "", "Optional path for the intermediate per-site record CSV")
	tolerance   = flag.Int("tolerance", 0, "Maximum base-pair distance between a site and a matching record; 0 = exact")
	firstWins   = flag.Bool("first-wins", false, "Keep the first of several equally good matches instead of failing")
	parallelism = flag.Int("parallelism", 0, "Maximum number of concurrent chromosome partitions; 0 = runtime.NumCPU()")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if *tool == "" || *inPath == "" || *tablePath == "" {
		log.Fatalf("-tool, -in and -table are required")
	}
	out := *outPath
	if out == "" {
		out = *tablePath
	}
	ctx := vcontext.Background()

	normalizer, err := quant.ForTool(*tool, *inPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	table, err := splicetable.Read(ctx, *tablePath)
	if err != nil {
		log.Fatalf("read %s: %v", *tablePath, err)
	}
	recs, err := normalizer.Normalize(ctx)
	if err != nil {
		log.Fatalf("normalize %s: %v", *inPath, err)
	}
	if *recordsOut != "" {
		if err := quant.WriteRecords(ctx, *recordsOut, recs); err != nil {
			log.Fatalf("write %s: %v", *recordsOut, err)
		}
	}

	policy := merge.PolicyError
	if *firstWins {
		policy = merge.PolicyFirstWins
	}
	stats, err := merge.Merge(table, quant.MeanBySite(recs), merge.Opts{
		Tool:        normalizer.Tool(),
		Metric:      normalizer.Metric(),
		Tolerance:   *tolerance,
		Policy:      policy,
		Parallelism: *parallelism,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := table.Write(ctx, out); err != nil {
		log.Fatalf("write %s: %v", out, err)
	}
	log.Printf("splice-merge: %s: %d sites matched, %d unmatched, %d records dropped -> %s",
		*tool, stats.MatchedSites, stats.UnmatchedSites, stats.DroppedRecords, out)
}
