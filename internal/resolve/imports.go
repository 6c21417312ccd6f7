package resolve

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

//go:embed queries/imports.scm
var queryFS embed.FS

var (
	jsLang    = javascript.GetLanguage()
	queryOnce sync.Once
	query     *sitter.Query
	queryErr  error
)

// importQuery returns the compiled specifier query (safe to share across
// goroutines; parsers are not, so each extraction creates its own).
func importQuery() (*sitter.Query, error) {
	queryOnce.Do(func() {
		data, err := queryFS.ReadFile("queries/imports.scm")
		if err != nil {
			queryErr = fmt.Errorf("reading import query: %w", err)
			return
		}
		q, err := sitter.NewQuery(data, jsLang)
		if err != nil {
			queryErr = fmt.Errorf("compiling import query: %w", err)
			return
		}
		query = q
	})
	return query, queryErr
}

// ImportSpan locates one import specifier inside a script: the byte range of
// the string literal (quotes included) and the unquoted specifier text.
type ImportSpan struct {
	Start int
	End   int
	Spec  string
}

// ExtractImports parses a script and returns the specifier spans of its
// static import and re-export declarations, in ascending byte order.
func ExtractImports(source []byte) ([]ImportSpan, error) {
	if len(source) == 0 {
		return nil, nil
	}

	q, err := importQuery()
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(jsLang)
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var spans []ImportSpan
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range match.Captures {
			start, end := int(c.Node.StartByte()), int(c.Node.EndByte())
			if end-start < 2 {
				continue // empty specifier
			}
			spans = append(spans, ImportSpan{
				Start: start,
				End:   end,
				Spec:  string(source[start+1 : end-1]),
			})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans, nil
}

// RewriteImports splices replacement specifiers into source. rewrite is
// consulted per specifier; returning ok=false leaves that import untouched.
// The quote characters are preserved, as is every byte outside the spans.
func RewriteImports(source []byte, spans []ImportSpan, rewrite func(spec string) (string, bool)) []byte {
	out := append([]byte(nil), source...)

	// Back to front so earlier offsets stay valid.
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		replacement, ok := rewrite(s.Spec)
		if !ok {
			continue
		}
		quote := out[s.Start]
		spliced := make([]byte, 0, len(out)-(s.End-s.Start)+len(replacement)+2)
		spliced = append(spliced, out[:s.Start]...)
		spliced = append(spliced, quote)
		spliced = append(spliced, replacement...)
		spliced = append(spliced, quote)
		spliced = append(spliced, out[s.End:]...)
		out = spliced
	}
	return out
}
