package loader

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"ragchat/internal/domain"
)

// TextLoader reads a whole UTF-8 file as one document.
type TextLoader struct{}

func NewTextLoader() *TextLoader { return &TextLoader{} }

func (l *TextLoader) Load(ctx context.Context, path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewError(domain.KindMalformedInput, "load text", err)
	}
	if !utf8.Valid(data) {
		return nil, domain.NewError(domain.KindMalformedInput, "load text", fmt.Errorf("%s is not valid UTF-8", path))
	}
	return []domain.Document{{
		ID:       hashString(path),
		Path:     path,
		Content:  string(data),
		Metadata: map[string]any{"source": path},
	}}, nil
}
