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
package splicetable

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/splice/annotation"
)

// BuildStats summarizes a Build run.
type BuildStats struct {
	Genes              int
	Sites              int
	SkippedTranscripts int
}

// Build constructs the canonical splice-site table from the principal
// transcript of each gene.  Each pair of adjacent exons yields one donor and
// one acceptor site; on the minus strand the roles invert relative to
// coordinate order.  Transcripts with fewer than two exons or a broken exon
// structure are skipped and counted, never fatal.
func Build(genes []*annotation.Gene, paralogs map[string]bool) (*Table, BuildStats) {
	var stats BuildStats
	table := &Table{}
	for _, gene := range genes {
		transcript := gene.Principal()
		if transcript == nil {
			continue
		}
		sites, err := transcriptSites(gene, transcript, paralogs[gene.ID])
		if err != nil {
			log.Error.Printf("splicetable: skipping %v", err)
			stats.SkippedTranscripts++
			continue
		}
		table.Sites = append(table.Sites, sites...)
		stats.Genes++
		stats.Sites += len(sites)
	}
	return table, stats
}

// transcriptSites emits the splice sites of one transcript in ascending
// coordinate order.
func transcriptSites(gene *annotation.Gene, transcript *annotation.Transcript, paralog bool) ([]Site, error) {
	exons := transcript.Exons
	if len(exons) < 2 {
		return nil, MalformedAnnotationError{transcript.ID, "fewer than two exons"}
	}
	for i, exon := range exons {
		if exon.Start > exon.End {
			return nil, MalformedAnnotationError{transcript.ID, "exon start past exon end"}
		}
		if i > 0 && exon.Start <= exons[i-1].End {
			return nil, MalformedAnnotationError{transcript.ID, "overlapping exons"}
		}
	}
	sites := make([]Site, 0, 2*(len(exons)-1))
	site := Site{
		Chrom:        gene.Chrom,
		Strand:       gene.Strand,
		TranscriptID: transcript.ID,
		GeneID:       gene.ID,
		Paralog:      paralog,
	}
	for i := 0; i+1 < len(exons); i++ {
		// The boundary at the upstream (in coordinate order) exon end and the
		// one at the downstream exon start.  On '+' the exon end is the donor;
		// on '-' transcription runs right to left, so the roles swap.
		endSite, startSite := site, site
		endSite.Pos = exons[i].End
		startSite.Pos = exons[i+1].Start
		if gene.Strand == '+' {
			endSite.Type = Donor
			startSite.Type = Acceptor
		} else {
			endSite.Type = Acceptor
			startSite.Type = Donor
		}
		sites = append(sites, endSite, startSite)
	}
	return sites, nil
}
