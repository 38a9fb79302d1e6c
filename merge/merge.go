// Copyright 2026 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package merge joins normalized quantification records onto the canonical
// splice table by coordinate and site type.  The join is partitioned by
// chromosome: partitions share no mutable state and fill disjoint regions of
// the output columns, so the result is deterministic regardless of worker
// count or completion order.
package merge

import (
	"fmt"
	"math"
	"runtime"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/splice/quant"
	"github.com/grailbio/splice/splicetable"
	"github.com/pkg/errors"
)

// Policy decides what to do when several records are equally good matches
// for one site.
type Policy int

const (
	// PolicyError fails the merge with an AmbiguousMatchError.  Default.
	PolicyError Policy = iota
	// PolicyFirstWins keeps the first candidate in record order.  Callers
	// must request this explicitly.
	PolicyFirstWins
)

// Opts configures a merge pass.
type Opts struct {
	// Tool labels the table columns this pass adds, e.g. "leafcutter".
	Tool string
	// Metric is "psi" or "sse".
	Metric string
	// Tolerance is the maximum distance in base pairs between a site and a
	// matching record.  0 requires exact positions; some upstream tools
	// report off-by-one coordinates that need a small window.
	Tolerance int
	Policy    Policy
	// Parallelism bounds the number of concurrent chromosome partitions.
	// 0 means runtime.NumCPU().
	Parallelism int
}

// AmbiguousMatchError reports a site with several equally good candidate
// records and no tie-break policy configured.
type AmbiguousMatchError struct {
	Site       splicetable.Site
	Candidates int
}

func (e AmbiguousMatchError) Error() string {
	return fmt.Sprintf("site %s:%d%c %v (%s): %d equally good records within tolerance",
		e.Site.Chrom, e.Site.Pos, e.Site.Strand, e.Site.Type, e.Site.TranscriptID, e.Candidates)
}

// Stats summarizes a merge pass.
type Stats struct {
	// MatchedSites and UnmatchedSites partition the table rows.
	MatchedSites   int
	UnmatchedSites int
	// DroppedRecords counts records with no canonical site within tolerance.
	DroppedRecords int
}

// Merge joins recs onto the table and installs the result as the opts.Tool
// column pair.  Every table row appears exactly once in the output, in input
// order; rows without a match keep missing values.  On error the table is
// left unmodified.
func Merge(table *splicetable.Table, recs []quant.Record, opts Opts) (Stats, error) {
	if opts.Tolerance < 0 {
		return Stats{}, errors.Errorf("merge: negative tolerance %d", opts.Tolerance)
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	n := len(table.Sites)
	values := make([]float64, n)
	positions := make([]int, n)
	for i := range values {
		values[i] = math.NaN()
	}

	chromOrder := table.Chromosomes()
	siteIdx := make(map[string][]int, len(chromOrder))
	for i := range table.Sites {
		c := table.Sites[i].Chrom
		siteIdx[c] = append(siteIdx[c], i)
	}
	recIdx := make(map[string][]int, len(chromOrder))
	for i := range recs {
		c := recs[i].Chrom
		recIdx[c] = append(recIdx[c], i)
	}
	matched := make([]bool, len(recs))

	nJobs := minInt(parallelism, len(chromOrder))
	if nJobs > 0 {
		err := traverse.Each(nJobs, func(jobIdx int) error {
			startIdx := (jobIdx * len(chromOrder)) / nJobs
			endIdx := ((jobIdx + 1) * len(chromOrder)) / nJobs
			for _, chrom := range chromOrder[startIdx:endIdx] {
				part := partition{
					sites:     table.Sites,
					recs:      recs,
					siteIdx:   siteIdx[chrom],
					recIdx:    recIdx[chrom],
					tolerance: opts.Tolerance,
					policy:    opts.Policy,
					values:    values,
					positions: positions,
					matched:   matched,
				}
				if err := part.run(); err != nil {
					return errors.Wrapf(err, "merge: chromosome %s", chrom)
				}
			}
			return nil
		})
		if err != nil {
			return Stats{}, err
		}
	}

	var stats Stats
	for i := range positions {
		if positions[i] != 0 {
			stats.MatchedSites++
		}
	}
	stats.UnmatchedSites = n - stats.MatchedSites
	for _, m := range matched {
		if !m {
			stats.DroppedRecords++
		}
	}
	if stats.DroppedRecords > 0 {
		log.Printf("merge: %s: dropped %d of %d records with no canonical site within tolerance %d",
			opts.Tool, stats.DroppedRecords, len(recs), opts.Tolerance)
	}
	table.SetTool(splicetable.ToolColumn{
		Tool:      opts.Tool,
		Metric:    opts.Metric,
		Values:    values,
		Positions: positions,
	})
	return stats, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
