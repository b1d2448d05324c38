package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ragchat/internal/domain"
)

func result(text string) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{Text: text}, Score: 0.9}
}

func TestBuild(t *testing.T) {
	got := Build("What color is the sky?", []domain.SearchResult{result("The sky is blue."), result("Grass is green.")})

	want := "[INST]<<SYS>> You are an assistant for question-answering tasks. Use the following pieces of retrieved context to answer the question.\n" +
		"If you don't know the answer, just say that you don't know. Use three sentences maximum and keep the answer concise.<</SYS>>\n" +
		"Question: What color is the sky?\n" +
		"Context: The sky is blue.\n\nGrass is green.\n" +
		"Answer: [/INST]"
	assert.Equal(t, want, got)
}

func TestBuildEmptyContext(t *testing.T) {
	got := Build("Anything?", nil)
	assert.Contains(t, got, "Question: Anything?\nContext: \nAnswer: [/INST]")
}

func TestBuildKeepsSpecialCharacters(t *testing.T) {
	got := Build("a < b & c?", []domain.SearchResult{result(`"quoted" <tag>`)})
	assert.Contains(t, got, "Question: a < b & c?")
	assert.Contains(t, got, `Context: "quoted" <tag>`)
}
