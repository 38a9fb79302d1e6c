// Package bamlist reads the sample manifest handed to the upstream
// quantification tools and sanity-checks the listed BAMs against the splice
// table before any expensive external run: a BAM whose header is missing the
// table's chromosomes would quantify nothing.
package bamlist

import (
	"bufio"
	"context"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/pkg/errors"
)

// Sample is one manifest line: a sample ID and the path of its alignment
// file.
type Sample struct {
	ID   string
	Path string
}

// ReadManifest reads a tab-delimited "sample_id<TAB>bam_path" manifest.
// Blank lines and '#' comments are skipped.
func ReadManifest(ctx context.Context, path string) (samples []Sample, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)

	scanner := bufio.NewScanner(in.Reader(ctx))
	lineno := 0
	seen := make(map[string]bool)
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			return nil, errors.Errorf("%s:%d: want sample_id<TAB>bam_path, got %q", path, lineno, line)
		}
		if seen[fields[0]] {
			return nil, errors.Errorf("%s:%d: duplicate sample %s", path, lineno, fields[0])
		}
		seen[fields[0]] = true
		samples = append(samples, Sample{ID: fields[0], Path: fields[1]})
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// MissingRefs maps a sample ID to the chromosomes its BAM header lacks.
// Samples whose BAM covers every chromosome are absent.
type MissingRefs map[string][]string

// CheckReferences reads each sample's BAM header and reports the chromosomes
// of chroms that its reference dictionary does not name.
func CheckReferences(ctx context.Context, samples []Sample, chroms []string) (MissingRefs, error) {
	missing := make(MissingRefs)
	for _, sample := range samples {
		lacks, err := missingRefs(ctx, sample.Path, chroms)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %s", sample.ID)
		}
		if len(lacks) > 0 {
			missing[sample.ID] = lacks
		}
	}
	return missing, nil
}

func missingRefs(ctx context.Context, path string, chroms []string) (lacks []string, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)

	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	names := make(map[string]bool)
	for _, ref := range r.Header().Refs() {
		names[ref.Name()] = true
	}
	for _, chrom := range chroms {
		if !names[chrom] {
			lacks = append(lacks, chrom)
		}
	}
	return lacks, nil
}
