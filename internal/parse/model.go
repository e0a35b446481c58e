package parse

// EventKind identifies one kind of editor-telemetry event. The set is
// closed: telemetry rows with an unknown Type tag map to KindUnrecognized,
// which the replayer treats as fatal for the session.
type EventKind int

const (
	KindUnrecognized EventKind = iota
	KindFocusFile
	KindTerminalCommand
	KindTerminalOutput
	KindTerminalFocus
	KindGitBranchCheckout
	KindSelectionChanged
	KindContentEdit
)

func (k EventKind) String() string {
	switch k {
	case KindFocusFile:
		return "focus_file"
	case KindTerminalCommand:
		return "terminal_command"
	case KindTerminalOutput:
		return "terminal_output"
	case KindTerminalFocus:
		return "terminal_focus"
	case KindGitBranchCheckout:
		return "git_branch_checkout"
	case KindSelectionChanged:
		return "selection_changed"
	case KindContentEdit:
		return "content_edit"
	default:
		return "unrecognized"
	}
}

// ParseKind maps a raw telemetry Type tag to an EventKind. The three
// selection sub-origins (command, mouse, keyboard) collapse into one kind.
func ParseKind(tag string) EventKind {
	switch tag {
	case "tab":
		return KindFocusFile
	case "terminal_command":
		return KindTerminalCommand
	case "terminal_output":
		return KindTerminalOutput
	case "terminal_focus":
		return KindTerminalFocus
	case "git_branch_checkout":
		return KindGitBranchCheckout
	case "selection_command", "selection_mouse", "selection_keyboard":
		return KindSelectionChanged
	case "content":
		return KindContentEdit
	default:
		return KindUnrecognized
	}
}

// Event is one validated telemetry record. Text and Language are nil when
// the CSV field was empty: upstream recorders leave both blank when there is
// no payload, and nil keeps "absent" distinguishable without sentinel strings.
type Event struct {
	Sequence    int64
	TimeMs      int64
	File        string
	RangeOffset int
	RangeLength int
	Text        *string
	Language    *string
	Kind        EventKind
	RawType     string // original Type tag, kept for error messages
}

// Session is one parsed session log: the ordered event sequence plus the
// identity of the file it came from.
type Session struct {
	Key      string
	FilePath string
	Events   []Event
}
