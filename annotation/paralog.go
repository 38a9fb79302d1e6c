package annotation

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// Column headers of the Ensembl BioMart paralog export.
const (
	paralogGeneCol = "Gene stable ID version"
	paralogHitCol  = "Human paralogue gene stable ID"
)

// ReadParalogs reads a tab-delimited BioMart paralog export and returns the
// set of gene IDs that have at least one known human paralog.
func ReadParalogs(ctx context.Context, path string) (paralogs map[string]bool, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)

	r := csv.NewReader(in.Reader(ctx))
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	geneIdx, hitIdx := -1, -1
	for i, name := range header {
		switch name {
		case paralogGeneCol:
			geneIdx = i
		case paralogHitCol:
			hitIdx = i
		}
	}
	if geneIdx < 0 || hitIdx < 0 {
		return nil, errors.Errorf("%s: missing %q or %q column", path, paralogGeneCol, paralogHitCol)
	}
	paralogs = make(map[string]bool)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		if len(row) <= geneIdx || len(row) <= hitIdx {
			continue
		}
		if row[hitIdx] != "" {
			paralogs[row[geneIdx]] = true
		}
	}
	log.Printf("annotation: %d genes with paralogs in %s", len(paralogs), path)
	return paralogs, nil
}
