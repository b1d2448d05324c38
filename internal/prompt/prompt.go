// Package prompt renders the instruction prompt sent to the language model.
package prompt

import (
	"strings"
	"text/template"

	"ragchat/internal/domain"
)

const defaultTemplate = `[INST]<<SYS>> You are an assistant for question-answering tasks. Use the following pieces of retrieved context to answer the question.
If you don't know the answer, just say that you don't know. Use three sentences maximum and keep the answer concise.<</SYS>>
Question: {{.Question}}
Context: {{.Context}}
Answer: [/INST]`

var tmpl = template.Must(template.New("rag").Parse(defaultTemplate))

type data struct {
	Question string
	Context  string
}

// Context joins the chunk texts of results with a blank line, in order.
func Context(results []domain.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Build renders the prompt for question over the retrieved results.
// No results render an empty context.
func Build(question string, results []domain.SearchResult) string {
	var b strings.Builder
	// executing a parsed template into a strings.Builder with plain string
	// fields cannot fail
	_ = tmpl.Execute(&b, data{Question: question, Context: Context(results)})
	return b.String()
}
