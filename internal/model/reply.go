package model

// Button is one labeled action attached to a reply. Data is the opaque
// callback payload echoed back when the participant taps it.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Reply is the transport-neutral outbound message produced by the
// conversation flows. Buttons are laid out as rows.
type Reply struct {
	Text    string     `json:"text"`
	Buttons [][]Button `json:"buttons,omitempty"`
}

func TextReply(text string) Reply {
	return Reply{Text: text}
}
