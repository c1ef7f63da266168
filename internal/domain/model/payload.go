package model

import (
	"errors"
	"strings"
)

// Default input values applied when a request omits them.
const (
	DefaultSchemaName    = "translate"
	DefaultQuestionCount = 5
)

// JobPayload is the closed set of job inputs. Each variant carries the fields
// its kind needs; the unexported marker keeps the set closed to this package.
type JobPayload interface {
	Kind() JobKind
	Validate() error
	isJobPayload()
}

// TranslationPayload is the input of a translation job.
type TranslationPayload struct {
	Text       string `json:"text"`
	SchemaName string `json:"schema_name"`
}

// Kind implements JobPayload.
func (TranslationPayload) Kind() JobKind { return JobKindTranslation }

// Validate implements JobPayload.
func (p TranslationPayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return errors.New("text is required")
	}
	return nil
}

func (TranslationPayload) isJobPayload() {}

// QuestionsPayload is the input of a question generation job. QuestionCount is
// stored as submitted; the executor clamps it.
type QuestionsPayload struct {
	Text          string `json:"text"`
	QuestionCount int    `json:"question_count"`
}

// Kind implements JobPayload.
func (QuestionsPayload) Kind() JobKind { return JobKindQuestions }

// Validate implements JobPayload.
func (p QuestionsPayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return errors.New("text is required")
	}
	return nil
}

func (QuestionsPayload) isJobPayload() {}

// LinguisticPayload is the input of a linguistic analysis job.
type LinguisticPayload struct {
	FullText     string `json:"full_text"`
	SelectedText string `json:"selected_text"`
}

// Kind implements JobPayload.
func (LinguisticPayload) Kind() JobKind { return JobKindLinguistic }

// Validate implements JobPayload.
func (p LinguisticPayload) Validate() error {
	if strings.TrimSpace(p.FullText) == "" {
		return errors.New("full_text is required")
	}
	if strings.TrimSpace(p.SelectedText) == "" {
		return errors.New("selected_text is required")
	}
	return nil
}

func (LinguisticPayload) isJobPayload() {}
