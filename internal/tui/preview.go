package tui

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dkempner/codereel/internal/corpus"
	"github.com/dkempner/codereel/internal/render"
	"github.com/dkempner/codereel/internal/search"
)

// previewRenderedMsg is sent when an async preview render completes.
type previewRenderedMsg struct {
	sessionKey string
	docID      int
	content    string
	hitLine    int
	err        error
}

// loadPreviewCmd returns a tea.Cmd that renders the transcript preview async.
func loadPreviewCmd(db *corpus.DB, r search.Result, query string, width int) tea.Cmd {
	return func() tea.Msg {
		content, hitLine, err := render.RenderSession(db, r.SessionKey, render.Options{
			HitDocID: r.DocID,
			Context:  -1,
			Width:    width,
			Query:    query,
		})
		return previewRenderedMsg{
			sessionKey: r.SessionKey,
			docID:      r.DocID,
			content:    content,
			hitLine:    hitLine,
			err:        err,
		}
	}
}

// newViewport creates a new viewport model with the given dimensions.
// The border is drawn by the surrounding panel, not the viewport itself.
func newViewport(width, height int) viewport.Model {
	return viewport.New(width, height)
}
