package model

import (
	"encoding/json"
	"fmt"
)

// JobResult is the closed set of job outputs, one variant per JobKind.
type JobResult interface {
	isJobResult()
}

// DictionaryEntry is a local dictionary hint attached to a translation prompt.
type DictionaryEntry struct {
	SourceTerm  string   `json:"source_term"`
	Romanized   string   `json:"romanized"`
	Suggestions []string `json:"suggestions"`
}

// Explanation pairs a difficult fragment of the source with its explanation.
// On the wire it is a two-element array.
type Explanation struct {
	Fragment    string
	Explanation string
}

// MarshalJSON encodes the pair as ["fragment", "explanation"].
func (e Explanation) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.Fragment, e.Explanation})
}

// UnmarshalJSON accepts the array form and an object form with
// fragment/explanation keys.
func (e *Explanation) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("explanation pair has %d elements", len(pair))
		}
		e.Fragment = rawString(pair[0])
		e.Explanation = rawString(pair[1])
		return nil
	}
	var obj struct {
		Fragment    string `json:"fragment"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	e.Fragment, e.Explanation = obj.Fragment, obj.Explanation
	return nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// TranslationResult is the output of a translation.
type TranslationResult struct {
	InputText          string            `json:"input_text"`
	SchemaUsed         string            `json:"schema_used"`
	Model              string            `json:"model"`
	TranslatedText     string            `json:"translated_text"`
	Explanations       []Explanation     `json:"explanations"`
	InitialTranslation string            `json:"initial_translation,omitempty"`
	DictionaryEntries  []DictionaryEntry `json:"dictionary_entries,omitempty"`
}

func (*TranslationResult) isJobResult() {}

// Question is one multiple-choice reading comprehension question.
type Question struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// QuestionResult is the output of question generation.
type QuestionResult struct {
	InputText     string     `json:"input_text"`
	QuestionCount int        `json:"question_count"`
	Questions     []Question `json:"questions"`
}

func (*QuestionResult) isJobResult() {}

// AnalyzedText is the span that a linguistic analysis covers.
type AnalyzedText struct {
	Chinese string `json:"chinese"`
	Pinyin  string `json:"pinyin"`
}

// TextExample is a fragment of the source with its romanization.
type TextExample struct {
	Chinese string `json:"chinese"`
	Pinyin  string `json:"pinyin"`
}

// GrammarPattern is one grammar pattern found in the analyzed span.
type GrammarPattern struct {
	Pattern       string      `json:"pattern"`
	Structure     string      `json:"structure"`
	ExampleInText TextExample `json:"example_in_text"`
	Explanation   string      `json:"explanation"`
}

// LinguisticResult is the output of a linguistic analysis.
type LinguisticResult struct {
	AnalyzedText                 AnalyzedText     `json:"analyzed_text"`
	ExpansionNote                *string          `json:"expansion_note,omitempty"`
	EnglishTranslation           string           `json:"english_translation"`
	SentenceStructureExplanation string           `json:"sentence_structure_explanation"`
	GrammaticalRuleExplanation   string           `json:"grammatical_rule_explanation"`
	GrammarPatterns              []GrammarPattern `json:"grammar_patterns"`
}

func (*LinguisticResult) isJobResult() {}

// SummaryResult is the output of the synchronous summarization endpoint.
type SummaryResult struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// WordAnalysis is the output of the synchronous word analysis endpoint.
type WordAnalysis struct {
	Word                string   `json:"word"`
	Synonyms            []string `json:"synonyms"`
	Antonyms            []string `json:"antonyms"`
	AlternativeWordings []string `json:"alternative_wordings"`
	UsageExamples       []string `json:"usage_examples"`
	Explanation         *string  `json:"explanation,omitempty"`
}
