package prompt

import "github.com/yuedu-lab/yuedu/internal/domain/model"

// TranslationInput is the JSON user payload of translation_only.
type TranslationInput struct {
	InputText         string                  `json:"input_text"`
	DictionaryMatches []model.DictionaryEntry `json:"dictionary_matches"`
}

// RefineInput is the JSON user payload of the translation schemas.
type RefineInput struct {
	InputText          string `json:"input_text"`
	InitialTranslation string `json:"initial_translation,omitempty"`
}

// FallbackInput feeds the plain-text translation retry.
type FallbackInput struct {
	Text     string
	Glossary string
}

// QuestionsInput is the JSON user payload of questions.
type QuestionsInput struct {
	InputText     string `json:"input_text"`
	QuestionCount int    `json:"question_count"`
}

// LinguisticInput is the JSON user payload of linguistic.
type LinguisticInput struct {
	FullText     string `json:"full_text"`
	SelectedText string `json:"selected_text"`
}

// SummaryInput feeds the summarize templates. Length and Style are already
// expanded to instructions.
type SummaryInput struct {
	Text   string
	Length string
	Style  string
}

// WordInput feeds the word analysis templates.
type WordInput struct {
	Word    string
	Context string
}

var summaryLengths = map[string]string{
	"short":  "1-2 sentences",
	"medium": "3-5 sentences",
	"long":   "a full paragraph (6-10 sentences)",
}

var summaryStyles = map[string]string{
	"neutral":  "Use neutral, objective language.",
	"simple":   "Use simple, easy-to-understand language suitable for beginners.",
	"academic": "Use formal, academic language.",
}

// SummaryLength expands a length name; unknown names mean medium.
func SummaryLength(name string) string {
	if s, ok := summaryLengths[name]; ok {
		return s
	}
	return summaryLengths["medium"]
}

// SummaryStyle expands a style name; unknown names mean neutral.
func SummaryStyle(name string) string {
	if s, ok := summaryStyles[name]; ok {
		return s
	}
	return summaryStyles["neutral"]
}
