package model

// OptionsPerQuestion is the fixed number of choices every question carries.
const OptionsPerQuestion = 4

// Option is one selectable choice of a question.
type Option struct {
	ID            string  `json:"id" validate:"required"`
	Ordinal       int     `json:"ordinal" validate:"min=1,max=4"`
	Text          string  `json:"text"`
	TextLocalized *string `json:"textLocalized,omitempty"`
}

// Question is immutable for the lifetime of an attempt.
type Question struct {
	ID                  string   `json:"id" validate:"required"`
	PromptText          string   `json:"promptText" validate:"required"`
	PromptTextLocalized *string  `json:"promptTextLocalized,omitempty"`
	Options             []Option `json:"options" validate:"len=4,dive"`
}

// Option looks up one of the question's options by id.
func (q Question) Option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// OptionByOrdinal looks up an option by its 1-based ordinal.
func (q Question) OptionByOrdinal(ordinal int) (Option, bool) {
	for _, o := range q.Options {
		if o.Ordinal == ordinal {
			return o, true
		}
	}
	return Option{}, false
}
