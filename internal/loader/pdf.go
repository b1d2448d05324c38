package loader

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"ragchat/internal/domain"
)

// PDFLoader extracts plain text page by page; each page is its own document
// carrying a 0-based "page" entry in its metadata.
type PDFLoader struct{}

func NewPDFLoader() *PDFLoader { return &PDFLoader{} }

func (l *PDFLoader) Load(ctx context.Context, path string) (docs []domain.Document, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = domain.NewError(domain.KindMalformedInput, "load pdf", fmt.Errorf("%s: %v", path, r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, domain.NewError(domain.KindMalformedInput, "load pdf", fmt.Errorf("%s: %w", path, err))
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, domain.NewError(domain.KindMalformedInput, "load pdf", fmt.Errorf("%s page %d: %w", path, i, err))
		}
		docs = append(docs, domain.Document{
			ID:      hashString(fmt.Sprintf("%s#%d", path, i-1)),
			Path:    path,
			Content: text,
			Metadata: map[string]any{
				"source": path,
				"page":   i - 1,
			},
		})
	}
	return docs, nil
}
