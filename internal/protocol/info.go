package protocol

// Attribution credits the source of an engine or model.
type Attribution struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// WakeModel advertises one installed keyword model.
type WakeModel struct {
	// Name is the keyword identifier clients pass in Detect events.
	Name string `json:"name"`

	// Description is a human-readable label (typically "name (language)").
	Description string `json:"description,omitempty"`

	// Phrase is the spoken phrase the model listens for.
	Phrase string `json:"phrase,omitempty"`

	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Languages   []string    `json:"languages"`
	Version     string      `json:"version"`
}

// WakeProgram advertises the installed detection engine and its models.
type WakeProgram struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Version     string      `json:"version"`
	Models      []WakeModel `json:"models"`
}

// Info answers a Describe event with the server's capabilities.
type Info struct {
	Wake []WakeProgram `json:"wake"`
}

// Event converts to the wire envelope.
func (i Info) Event() (Event, error) { return newEvent(TypeInfo, i) }

// InfoFromEvent decodes an info event.
func InfoFromEvent(e Event) (Info, error) {
	var i Info
	err := decodeData(e, &i)
	return i, err
}
