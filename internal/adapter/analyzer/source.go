package analyzer

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"pyrock/internal/adapter/fs"
	"pyrock/internal/domain"
)

// ProjectSource finds definitions of a symbol among the project's own Python
// files. It stands in for an editor's symbol index on the command line.
type ProjectSource struct {
	root     string
	walker   *fs.Walker
	analyzer *PythonAnalyzer
	log      zerolog.Logger
}

func NewProjectSource(root string, log zerolog.Logger) *ProjectSource {
	return &ProjectSource{
		root:     root,
		walker:   fs.NewPythonWalker(),
		analyzer: NewPythonAnalyzer(),
		log:      log,
	}
}

// Locations returns every top-level definition named symbol. DisplayName is
// the slash-separated path relative to the project root.
func (s *ProjectSource) Locations(ctx context.Context, symbol string) ([]domain.SymbolLocation, error) {
	files, err := s.walker.Walk(s.root)
	if err != nil {
		return nil, err
	}

	var locs []domain.SymbolLocation
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f.Path)
		if err != nil {
			s.log.Debug().Err(err).Str("file", f.RelPath).Msg("skip unreadable file")
			continue
		}
		defs, err := s.analyzer.TopLevel(data)
		if err != nil {
			s.log.Debug().Err(err).Str("file", f.RelPath).Msg("skip unparsable file")
			continue
		}
		for _, d := range defs {
			if d.Name != symbol {
				continue
			}
			locs = append(locs, domain.SymbolLocation{
				Path:        f.Path,
				DisplayName: f.RelPath,
				Name:        d.Name,
				Kind:        d.Kind,
				Line:        d.Line,
			})
		}
	}
	return locs, nil
}
