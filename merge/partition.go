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
package merge

import (
	"math"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/splice/quant"
	"github.com/grailbio/splice/splicetable"
)

// recKey orders a chromosome's records by (strand, type, position) for
// tolerance-window range queries.  The record index breaks ties so that
// records at the same position stay distinct tree nodes.
type recKey struct {
	strand byte
	typ    splicetable.SiteType
	pos    int
	idx    int
}

// Compare implements llrb.Comparable.
func (k recKey) Compare(c2 llrb.Comparable) int {
	k2 := c2.(recKey)
	if k.strand != k2.strand {
		return int(k.strand) - int(k2.strand)
	}
	if k.typ != k2.typ {
		return int(k.typ) - int(k2.typ)
	}
	if k.pos != k2.pos {
		return k.pos - k2.pos
	}
	return k.idx - k2.idx
}

// partition is the per-chromosome unit of work.  siteIdx and recIdx select
// this chromosome's rows of the shared slices; distinct partitions touch
// disjoint indices, so no locking is needed.
type partition struct {
	sites     []splicetable.Site
	recs      []quant.Record
	siteIdx   []int
	recIdx    []int
	tolerance int
	policy    Policy
	values    []float64
	positions []int
	matched   []bool
}

func (p *partition) run() error {
	var tree llrb.Tree
	for _, ri := range p.recIdx {
		r := &p.recs[ri]
		tree.Insert(recKey{r.Strand, r.Type, r.Pos, ri})
	}
	var candidates []int
	for _, si := range p.siteIdx {
		site := &p.sites[si]
		candidates = candidates[:0]
		for _, typ := range []splicetable.SiteType{site.Type, splicetable.AnySite} {
			from := recKey{site.Strand, typ, site.Pos - p.tolerance, 0}
			to := recKey{site.Strand, typ, site.Pos + p.tolerance + 1, 0}
			tree.DoRange(func(c llrb.Comparable) bool {
				candidates = append(candidates, c.(recKey).idx)
				return false
			}, from, to)
		}
		ri, err := p.pick(site, candidates)
		if err != nil {
			return err
		}
		if ri < 0 {
			continue
		}
		p.matched[ri] = true
		p.values[si] = p.recs[ri].Value
		p.positions[si] = p.recs[ri].Pos
	}
	// A record matching several sites (e.g. a donor and an acceptor of two
	// transcripts at the same coordinate) counts as kept once it fills any
	// row, so only truly orphaned records are reported as dropped.
	return nil
}

// pick applies the tie-break order: exact position beats within-tolerance,
// then non-missing beats missing, then the configured policy decides.  It
// returns -1 when there is no candidate.
func (p *partition) pick(site *splicetable.Site, candidates []int) (int, error) {
	best, bestRank, ties := -1, -1, 0
	for _, ri := range candidates {
		r := &p.recs[ri]
		rank := 0
		if r.Pos == site.Pos {
			rank += 2
		}
		if !math.IsNaN(r.Value) {
			rank++
		}
		if rank > bestRank {
			best, bestRank, ties = ri, rank, 1
		} else if rank == bestRank {
			ties++
		}
	}
	if best < 0 {
		return -1, nil
	}
	if ties > 1 && p.policy != PolicyFirstWins {
		return -1, AmbiguousMatchError{Site: *site, Candidates: ties}
	}
	return best, nil
}
