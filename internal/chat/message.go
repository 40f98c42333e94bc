package chat

// SectionKind selects how a section is rendered.
type SectionKind string

const (
	SectionHeader  SectionKind = "header"
	SectionText    SectionKind = "text"
	SectionFields  SectionKind = "fields"
	SectionActions SectionKind = "actions"
	SectionContext SectionKind = "context"
	SectionDivider SectionKind = "divider"
)

// ControlKind selects an interactive element type.
type ControlKind string

const (
	ControlButton       ControlKind = "button"
	ControlStaticSelect ControlKind = "static_select"
	ControlUserSelect   ControlKind = "user_select"
)

// Message is a platform-neutral chat message.
// Text is the notification fallback and is always set.
type Message struct {
	Text     string
	Sections []Section
}

type Section struct {
	ID       string
	Kind     SectionKind
	Text     string
	Fields   []string
	Controls []Control
}

type Control struct {
	Kind     ControlKind
	ActionID string
	Label    string
	Value    string
	Options  []Option
	Selected string
}

type Option struct {
	Value string
	Label string
}

// Plain builds a message that only carries text.
func Plain(text string) Message {
	return Message{
		Text:     text,
		Sections: []Section{{Kind: SectionText, Text: text}},
	}
}

// Section returns the section with the given id.
func (m Message) Section(id string) (Section, bool) {
	for _, s := range m.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// Control returns the control with the given action id in any section.
func (m Message) Control(actionID string) (Control, bool) {
	for _, s := range m.Sections {
		for _, c := range s.Controls {
			if c.ActionID == actionID {
				return c, true
			}
		}
	}
	return Control{}, false
}
