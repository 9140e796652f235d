package models

// Script is a parenting script from the library
type Script struct {
	ID                int64  `json:"id" db:"id"`
	Title             string `json:"title" db:"title"`
	Category          string `json:"category" db:"category"`
	Profile           string `json:"profile" db:"profile"` // Brain profile tag, empty for universal scripts
	SituationTrigger  string `json:"situation_trigger" db:"situation_trigger"`
	EmergencySuitable bool   `json:"emergency_suitable" db:"emergency_suitable"`
	Location          string `json:"location" db:"location"` // "home", "public", "car" or empty for anywhere
	Phrase1           string `json:"phrase_1" db:"phrase_1"`
	Phrase2           string `json:"phrase_2" db:"phrase_2"`
	Phrase3           string `json:"phrase_3" db:"phrase_3"`
	Action1           string `json:"action_1" db:"action_1"`
	Action2           string `json:"action_2" db:"action_2"`
	Action3           string `json:"action_3" db:"action_3"`
	NeurologicalTip   string `json:"neurological_tip" db:"neurological_tip"`
}

// Phrases returns the three script phrases in order
func (s Script) Phrases() []string {
	return []string{s.Phrase1, s.Phrase2, s.Phrase3}
}

// Actions returns the optional action labels paired with the phrases
func (s Script) Actions() []string {
	return []string{s.Action1, s.Action2, s.Action3}
}
