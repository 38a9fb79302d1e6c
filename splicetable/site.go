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

// Package splicetable defines the canonical per-transcript splice-site table:
// one row per donor or acceptor site of each principal transcript, augmented
// with quantification columns joined in from upstream splicing tools.
package splicetable

import (
	"fmt"
)

// SiteType distinguishes the two boundaries of an intron.
type SiteType uint8

const (
	// Donor is the 5' splice site: the boundary at the end of the upstream
	// exon, in transcription order.
	Donor SiteType = iota
	// Acceptor is the 3' splice site: the boundary at the start of the
	// downstream exon, in transcription order.
	Acceptor
	// AnySite marks quantification records from tools that report per-site
	// values without labeling donor vs acceptor (SpliSER).  It matches either
	// type during a merge and never appears in a built table.
	AnySite
)

func (t SiteType) String() string {
	switch t {
	case Donor:
		return "donor"
	case Acceptor:
		return "acceptor"
	case AnySite:
		return "any"
	}
	return fmt.Sprintf("SiteType(%d)", int(t))
}

// ParseSiteType parses the string form emitted by SiteType.String.
func ParseSiteType(s string) (SiteType, error) {
	switch s {
	case "donor":
		return Donor, nil
	case "acceptor":
		return Acceptor, nil
	case "any":
		return AnySite, nil
	}
	return 0, fmt.Errorf("unrecognized site type %q", s)
}

// Site is one splice site of a principal transcript.  A site is uniquely
// identified by (Chrom, Pos, Strand, Type, TranscriptID).
type Site struct {
	Chrom        string
	Pos          int // 1-based genomic coordinate
	Strand       byte
	Type         SiteType
	TranscriptID string
	GeneID       string
	Paralog      bool
}

// MalformedAnnotationError reports a transcript whose exon structure cannot
// yield splice sites.  The transcript is skipped and counted; the run
// continues.
type MalformedAnnotationError struct {
	TranscriptID string
	Message      string
}

func (e MalformedAnnotationError) Error() string {
	return fmt.Sprintf("transcript %s: %s", e.TranscriptID, e.Message)
}

// SchemaMismatchError reports a splice-table file whose leading columns are
// missing or reordered.  All downstream consumers assume the fixed column
// order, so this is fatal.
type SchemaMismatchError struct {
	Path    string
	Message string
}

func (e SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: schema mismatch: %s", e.Path, e.Message)
}
