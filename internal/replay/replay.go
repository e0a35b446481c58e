// Package replay reconstructs per-file document state from a session's
// ordered telemetry events and renders a deterministic textual transcript.
//
// Events are processed in the exact order supplied. Time is used only to
// measure gaps between consecutive events, never to re-sort them: if a log's
// rows are out of chronological order, pause detection and offset padding
// follow log order on purpose, since re-sorting would change transcript
// semantics versus the recordings already in circulation.
package replay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkempner/codereel/internal/parse"
)

// ErrUnrecognizedEvent aborts a session replay. The caller decides whether
// to skip the session or abort the batch.
var ErrUnrecognizedEvent = errors.New("unrecognized event kind")

// Options controls transcript rendering.
type Options struct {
	// LongPauseThresholdMs is the strict lower bound for emitting a pause
	// marker between consecutive events. A delta equal to the threshold does
	// not trigger.
	LongPauseThresholdMs int64
}

// Cursor is the last known selection extent in one file.
type Cursor struct {
	Offset int
	Length int
}

// Result is the outcome of replaying one session. FileStates and Cursors
// expose the final reconstruction so callers can verify fidelity; the
// transcript itself is the product.
type Result struct {
	Transcript string
	FileStates map[string]string
	Cursors    map[string]Cursor
}

// state is owned by exactly one Replay call and discarded at its end.
// Nothing survives across sessions, which is what makes replaying sessions
// in parallel trivial for the driver.
type state struct {
	fileStates map[string]string
	cursors    map[string]Cursor
	lastTimeMs *int64
	parts      []string
}

// Replay renders the transcript for one session's ordered events.
// An empty event sequence yields an empty transcript, not an error.
func Replay(events []parse.Event, opts Options) (*Result, error) {
	st := &state{
		fileStates: make(map[string]string),
		cursors:    make(map[string]Cursor),
	}

	for _, ev := range events {
		if st.lastTimeMs != nil {
			delta := ev.TimeMs - *st.lastTimeMs
			if delta > opts.LongPauseThresholdMs {
				st.emit(`<obs long_pause ms="%d" />`, delta)
			}
		}
		t := ev.TimeMs
		st.lastTimeMs = &t

		if err := st.dispatch(ev); err != nil {
			return nil, err
		}
	}

	return &Result{
		Transcript: strings.TrimSpace(strings.Join(st.parts, "\n")),
		FileStates: st.fileStates,
		Cursors:    st.cursors,
	}, nil
}

func (st *state) dispatch(ev parse.Event) error {
	switch ev.Kind {
	case parse.KindFocusFile:
		st.focusFile(ev)
	case parse.KindTerminalCommand:
		st.emit(`<act terminal_command />`)
		bash := "bash"
		st.fence(&bash, Clean(textOf(ev)))
	case parse.KindTerminalOutput:
		st.emit(`<obs terminal_output />`)
		st.fence(nil, Clean(textOf(ev)))
	case parse.KindTerminalFocus:
		st.emit(`<act focus target="terminal" />`)
	case parse.KindGitBranchCheckout:
		st.emit(`<act git_branch_checkout />`)
		st.emit("// git: %s", Clean(textOf(ev)))
	case parse.KindSelectionChanged:
		st.selectionChanged(ev)
	case parse.KindContentEdit:
		st.contentEdit(ev)
	default:
		return fmt.Errorf("event %d (type %q): %w", ev.Sequence, ev.RawType, ErrUnrecognizedEvent)
	}
	return nil
}

// focusFile records a file switch. A text payload is only present the first
// time a file is opened and carries the full file snapshot.
func (st *state) focusFile(ev parse.Event) {
	st.emit(`<act focus file="%s" />`, ev.File)

	if ev.Text == nil {
		return
	}
	content := Unescape(*ev.Text)
	st.fileStates[ev.File] = content
	st.emit("// observation: file=%s", ev.File)
	st.fence(ev.Language, Clean(content))
}

// selectionChanged emits a cursor marker only when the position actually
// moved; the new position is stored either way.
func (st *state) selectionChanged(ev parse.Event) {
	next := Cursor{Offset: ev.RangeOffset, Length: ev.RangeLength}
	prev := st.cursors[ev.File]
	st.cursors[ev.File] = next
	if prev != next {
		st.emit(`<act cursor file="%s" offset="%d" len="%d" />`, ev.File, next.Offset, next.Length)
	}
}

func (st *state) contentEdit(ev parse.Event) {
	text := ""
	if ev.Text != nil {
		text = Unescape(*ev.Text)
	}

	op := "noop"
	switch {
	case ev.RangeLength == 0 && text != "":
		op = "insert"
	case ev.RangeLength > 0 && text == "":
		op = "delete"
	case ev.RangeLength > 0 && text != "":
		op = "replace"
	}

	st.emit(`<act %s file="%s" offset="%d" len="%d" />`, op, ev.File, ev.RangeOffset, ev.RangeLength)
	if op == "insert" || op == "replace" {
		st.fence(ev.Language, Clean(text))
	}

	st.fileStates[ev.File] = Apply(st.fileStates[ev.File], ev.RangeOffset, ev.RangeLength, text)

	// Cursor snaps to the end of the inserted/replaced text.
	st.cursors[ev.File] = Cursor{Offset: ev.RangeOffset + len([]rune(text))}
}

func (st *state) emit(format string, args ...interface{}) {
	st.parts = append(st.parts, fmt.Sprintf(format, args...))
}

// fence appends a fenced block with a lower-cased language tag (empty tag
// when language is absent). The trailing newline keeps a blank line between
// the fence and the next marker once parts are joined.
func (st *state) fence(language *string, content string) {
	lang := ""
	if language != nil {
		lang = strings.ToLower(*language)
	}
	st.parts = append(st.parts, fmt.Sprintf("```%s\n%s\n```\n", lang, content))
}

func textOf(ev parse.Event) string {
	if ev.Text == nil {
		return ""
	}
	return Unescape(*ev.Text)
}
