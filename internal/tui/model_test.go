package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/service"
)

type fakeSession struct {
	folder  string
	asked   []string
	cleared bool
	askErr  error
}

func (f *fakeSession) Ask(_ context.Context, q string) (*service.Answer, error) {
	f.asked = append(f.asked, q)
	if f.askErr != nil {
		return nil, f.askErr
	}
	return &service.Answer{
		Text: "It is blue.",
		Sources: []domain.SearchResult{
			{Chunk: domain.Chunk{Source: "sky.txt", Text: "The sky is blue. Grass is green."}, Score: 0.8},
			{Chunk: domain.Chunk{Source: "sea.txt", Text: "The sea is blue too."}, Score: 0.6},
		},
	}, nil
}

func (f *fakeSession) Ingest(_ context.Context, folder string) (*service.IngestReport, error) {
	f.folder = folder
	return &service.IngestReport{Folder: folder, Documents: 2, Chunks: 3, Summary: "About skies."}, nil
}

func (f *fakeSession) Clear(context.Context) error {
	f.cleared = true
	f.folder = ""
	return nil
}

func (f *fakeSession) Folder() string { return f.folder }

// enter types line and presses enter, running the resulting command.
func enter(t *testing.T, m Model, line string) Model {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	return next.(Model)
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func TestAskShowsAnswerAndSources(t *testing.T) {
	sess := &fakeSession{folder: "data"}
	m := sized(New(context.Background(), sess, "About skies."))

	m = enter(t, m, "What color is the sky?")
	assert.Equal(t, []string{"What color is the sky?"}, sess.asked)
	assert.False(t, m.busy)
	assert.Len(t, m.sources, 2)
	assert.Contains(t, m.renderTranscript(), "It is blue.")
	assert.Contains(t, m.renderSource(), "sky.txt")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	assert.Contains(t, m.renderSource(), "sea.txt")
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = next.(Model)
	assert.Contains(t, m.renderSource(), "sky.txt")
	assert.Contains(t, m.View(), "ragchat")
}

func TestCommands(t *testing.T) {
	sess := &fakeSession{}
	m := sized(New(context.Background(), sess, ""))

	m = enter(t, m, "/ingest ./docs")
	assert.Equal(t, "./docs", sess.folder)
	assert.Equal(t, "About skies.", m.summary)
	assert.Contains(t, m.status, "2 documents, 3 chunks")

	m = enter(t, m, "/clear")
	assert.True(t, sess.cleared)
	assert.Empty(t, m.summary)
	assert.Empty(t, m.sources)

	m.input.SetValue("/ingest")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, next.(Model).status, "Usage")
}

func TestAskErrorIsShownInTranscript(t *testing.T) {
	sess := &fakeSession{askErr: domain.NewError(domain.KindServiceUnavailable, "generate", errors.New("refused"))}
	m := sized(New(context.Background(), sess, ""))

	m = enter(t, m, "sky?")
	require.Len(t, m.turns, 1)
	assert.True(t, m.turns[0].failed)
	assert.Equal(t, "Error: service_unavailable", m.status)
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("Grass is green. The sky is blue.", "sky")
	assert.Contains(t, out, "Grass is green.")
	assert.Contains(t, out, "The sky is blue.")
	assert.Equal(t, "   ", highlightBestSentence("   ", "sky"))
}
