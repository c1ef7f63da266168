package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/yuedu-lab/yuedu/internal/domain/dictionary"
	"github.com/yuedu-lab/yuedu/internal/domain/llmjson"
	"github.com/yuedu-lab/yuedu/internal/domain/model"
	"github.com/yuedu-lab/yuedu/internal/domain/prompt"
	apperrors "github.com/yuedu-lab/yuedu/internal/errors"
	"github.com/yuedu-lab/yuedu/internal/ports"
)

// Question count bounds.
const (
	MinQuestionCount = 1
	MaxQuestionCount = 20
)

// LanguageServiceOptions groups dependencies for LanguageService.
type LanguageServiceOptions struct {
	Model      ports.ModelClient      // Required
	Prompts    *prompt.Catalog        // Required
	Dictionary *dictionary.Dictionary // Optional: nil disables dictionary hints
	Logger     *slog.Logger           // Optional
}

// LanguageService runs the model-backed text operations: translation,
// question generation, linguistic analysis, summarization and word analysis.
type LanguageService struct {
	model   ports.ModelClient
	prompts *prompt.Catalog
	dict    *dictionary.Dictionary
	logger  *slog.Logger
}

// NewLanguageService constructs a LanguageService.
func NewLanguageService(opts LanguageServiceOptions) (*LanguageService, error) {
	if opts.Model == nil {
		return nil, errors.New("ModelClient is required")
	}
	if opts.Prompts == nil {
		return nil, errors.New("prompt catalog is required")
	}
	dict := opts.Dictionary
	if dict == nil {
		dict = dictionary.Empty()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LanguageService{
		model:   opts.Model,
		prompts: opts.Prompts,
		dict:    dict,
		logger:  logger.With("component", "language_service"),
	}, nil
}

// Schemas lists the selectable translation schemas.
func (s *LanguageService) Schemas() map[string]string {
	return s.prompts.Schemas()
}

// ClampQuestionCount applies the default to zero and bounds n to [1, 20].
func ClampQuestionCount(n int) int {
	if n == 0 {
		return model.DefaultQuestionCount
	}
	return min(max(n, MinQuestionCount), MaxQuestionCount)
}

// call renders name with data, sends it, and returns the normalized reply.
// An empty reply counts as an unavailable backend; a reply that is only
// reasoning markup is a parse failure.
func (s *LanguageService) call(ctx context.Context, name string, data any) (string, error) {
	p, opts, err := s.prompts.Render(name, data)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "render prompt")
	}
	raw, ok := s.model.Generate(ctx, p, opts)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ok {
		return "", errUnavailable()
	}
	clean := llmjson.StripMarkup(raw)
	if clean == "" {
		if strings.TrimSpace(raw) != "" {
			// Only reasoning came back, e.g. a <think> block cut off by num_predict.
			return "", errParse(raw)
		}
		return "", errUnavailable()
	}
	return clean, nil
}

// parse turns normalized model output into a JSON object, applying the shared
// failure rules: unparseable text is a parse failure and an explicit
// "success": false is a rejection carrying the embedded error.
func parse(clean string) (llmjson.Document, error) {
	doc, ok := llmjson.ParseLenient(clean)
	if !ok || !doc.IsObject() {
		return llmjson.Document{}, errParse(clean)
	}
	if v := doc.Get("success"); v.Exists() && v.Type == gjson.False {
		return llmjson.Document{}, errRejected(doc.Get("error").String(), clean)
	}
	return doc, nil
}

func (s *LanguageService) ensureBackend(ctx context.Context) error {
	if !s.model.CheckConnection(ctx) {
		return errUnavailable()
	}
	return nil
}

// Translate translates Chinese text to English. Two-stage schemas first
// obtain an initial translation with dictionary hints and then ask for a
// refined translation with explanations; single-stage schemas go straight to
// the second step. Unknown schema names use the default schema.
func (s *LanguageService) Translate(ctx context.Context, text, schemaName string) (*model.TranslationResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ValidationField("text", "text is required")
	}
	if err := s.ensureBackend(ctx); err != nil {
		return nil, err
	}

	schema := s.prompts.Schema(schemaName)
	result := &model.TranslationResult{
		InputText:  text,
		SchemaUsed: schema.Name,
		Model:      s.model.ModelName(),
	}

	in := prompt.RefineInput{InputText: text}
	if schema.TwoStage {
		initial, entries := s.initialTranslation(ctx, text)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in.InitialTranslation = initial
		result.InitialTranslation = initial
		result.DictionaryEntries = entries
	}

	clean, err := s.call(ctx, schema.Name, in)
	if err != nil {
		return nil, err
	}
	doc, err := parse(clean)
	if err != nil {
		return nil, err
	}

	translated := doc.Get("translated_text")
	if translated.Type != gjson.String || strings.TrimSpace(translated.Str) == "" {
		return nil, errRejected("model response has no translated_text", clean)
	}
	result.TranslatedText = strings.TrimSpace(translated.Str)
	result.Explanations = explanations(doc)
	return result, nil
}

// initialTranslation runs the first pass: a JSON translation with dictionary
// matches, then a plain-text retry, and finally the source text itself.
func (s *LanguageService) initialTranslation(ctx context.Context, text string) (string, []model.DictionaryEntry) {
	entries := s.dict.Lookup(text)

	attempts := []struct {
		name string
		data any
	}{
		{prompt.TranslationOnly, prompt.TranslationInput{InputText: text, DictionaryMatches: entries}},
		{prompt.TranslationFallback, prompt.FallbackInput{Text: text, Glossary: dictionary.FormatPrompt(entries)}},
	}
	for _, a := range attempts {
		clean, err := s.call(ctx, a.name, a.data)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.DebugContext(ctx, "initial translation attempt failed", "stage", a.name, "error", err)
			continue
		}
		if candidate := extractTranslated(clean); candidate != "" {
			return candidate, entries
		}
	}
	return text, entries
}

// extractTranslated pulls translated_text out of a JSON reply. Replies that
// are not JSON are taken as the translation itself.
func extractTranslated(clean string) string {
	if !gjson.Valid(clean) {
		return strings.TrimSpace(clean)
	}
	root := gjson.Parse(clean)
	if !root.IsObject() {
		return strings.TrimSpace(clean)
	}
	v := root.Get("translated_text")
	switch {
	case !v.Exists():
		return ""
	case v.Type == gjson.String:
		return strings.TrimSpace(v.Str)
	default:
		return strings.TrimSpace(clean)
	}
}

// explanations reads the fragment/explanation pairs. The misspelled key is
// what the prompt asks for; the corrected spelling is accepted too. Malformed
// items are skipped.
func explanations(doc llmjson.Document) []model.Explanation {
	list := doc.Get("explainations_list")
	if !list.IsArray() {
		list = doc.Get("explanations")
	}
	out := []model.Explanation{}
	for _, item := range list.Array() {
		var e model.Explanation
		if err := json.Unmarshal([]byte(item.Raw), &e); err == nil && e.Fragment != "" {
			out = append(out, e)
		}
	}
	return out
}

// GenerateQuestions writes multiple-choice reading comprehension questions
// about text. count is clamped with ClampQuestionCount.
func (s *LanguageService) GenerateQuestions(ctx context.Context, text string, count int) (*model.QuestionResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ValidationField("text", "text is required")
	}
	if err := s.ensureBackend(ctx); err != nil {
		return nil, err
	}

	count = ClampQuestionCount(count)
	clean, err := s.call(ctx, prompt.Questions, prompt.QuestionsInput{InputText: text, QuestionCount: count})
	if err != nil {
		return nil, err
	}
	doc, err := parse(clean)
	if err != nil {
		return nil, err
	}

	list := doc.Get("questions")
	if !list.IsArray() || len(list.Array()) == 0 {
		return nil, errRejected("model response has no questions", clean)
	}
	questions := make([]model.Question, 0, len(list.Array()))
	for _, item := range list.Array() {
		var q model.Question
		if err := json.Unmarshal([]byte(item.Raw), &q); err == nil && q.Question != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		return nil, errRejected("model response has no well-formed questions", clean)
	}

	return &model.QuestionResult{
		InputText:     text,
		QuestionCount: count,
		Questions:     questions,
	}, nil
}

// AnalyzeLinguistic explains the grammar of selected within full.
func (s *LanguageService) AnalyzeLinguistic(ctx context.Context, full, selected string) (*model.LinguisticResult, error) {
	if strings.TrimSpace(full) == "" {
		return nil, apperrors.ValidationField("full_text", "full_text is required")
	}
	if strings.TrimSpace(selected) == "" {
		return nil, apperrors.ValidationField("selected_text", "selected_text is required")
	}
	if err := s.ensureBackend(ctx); err != nil {
		return nil, err
	}

	clean, err := s.call(ctx, prompt.Linguistic, prompt.LinguisticInput{FullText: full, SelectedText: selected})
	if err != nil {
		return nil, err
	}
	doc, err := parse(clean)
	if err != nil {
		return nil, err
	}
	if e := doc.Get("error"); e.Exists() {
		return nil, errRejected(e.String(), clean)
	}
	if !doc.Get("english_translation").Exists() {
		return nil, errRejected("model response has no english_translation", clean)
	}

	var res model.LinguisticResult
	if err := doc.Decode(&res); err != nil {
		return nil, errParse(clean)
	}
	if res.GrammarPatterns == nil {
		res.GrammarPatterns = []model.GrammarPattern{}
	}
	return &res, nil
}

// SummaryRequest is the input of Summarize.
type SummaryRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Length   string `json:"length"`
	Style    string `json:"style"`
}

// Summarize condenses text. Language "chi" (the default) answers in Chinese;
// anything else answers in English.
func (s *LanguageService) Summarize(ctx context.Context, req SummaryRequest) (*model.SummaryResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperrors.ValidationField("text", "text is required")
	}
	if err := s.ensureBackend(ctx); err != nil {
		return nil, err
	}

	name := prompt.SummarizeChinese
	if req.Language != "" && req.Language != "chi" {
		name = prompt.SummarizeEnglish
	}
	clean, err := s.call(ctx, name, prompt.SummaryInput{
		Text:   req.Text,
		Length: prompt.SummaryLength(req.Length),
		Style:  prompt.SummaryStyle(req.Style),
	})
	if err != nil {
		return nil, err
	}
	doc, err := parse(clean)
	if err != nil {
		return nil, err
	}

	res := &model.SummaryResult{
		Summary:   doc.Get("summary").String(),
		KeyPoints: stringList(doc.Get("key_points")),
	}
	if res.Summary == "" && len(res.KeyPoints) == 0 {
		return nil, errRejected("model response has no summary", clean)
	}
	return res, nil
}

// WordRequest is the input of AnalyzeWord. Nil include flags mean true.
type WordRequest struct {
	Word                string `json:"word"`
	Context             string `json:"context,omitempty"`
	Language            string `json:"language,omitempty"`
	IncludeSynonyms     *bool  `json:"include_synonyms,omitempty"`
	IncludeAntonyms     *bool  `json:"include_antonyms,omitempty"`
	IncludeAlternatives *bool  `json:"include_alternatives,omitempty"`
}

func include(flag *bool) bool { return flag == nil || *flag }

// AnalyzeWord lists synonyms, antonyms, alternative wordings and usage
// examples for a word, optionally in the context of a sentence.
func (s *LanguageService) AnalyzeWord(ctx context.Context, req WordRequest) (*model.WordAnalysis, error) {
	if strings.TrimSpace(req.Word) == "" {
		return nil, apperrors.ValidationField("word", "word is required")
	}
	if err := s.ensureBackend(ctx); err != nil {
		return nil, err
	}

	name := prompt.WordChinese
	if req.Language != "" && req.Language != "chi" {
		name = prompt.WordEnglish
	}
	clean, err := s.call(ctx, name, prompt.WordInput{Word: req.Word, Context: req.Context})
	if err != nil {
		return nil, err
	}
	doc, err := parse(clean)
	if err != nil {
		return nil, err
	}

	res := &model.WordAnalysis{
		Word:                req.Word,
		Synonyms:            []string{},
		Antonyms:            []string{},
		AlternativeWordings: []string{},
		UsageExamples:       stringList(doc.Get("usage_examples")),
	}
	if include(req.IncludeSynonyms) {
		res.Synonyms = stringList(doc.Get("synonyms"))
	}
	if include(req.IncludeAntonyms) {
		res.Antonyms = stringList(doc.Get("antonyms"))
	}
	if include(req.IncludeAlternatives) {
		res.AlternativeWordings = stringList(doc.Get("alternative_wordings"))
	}
	if e := doc.Get("explanation"); e.Exists() && e.Type != gjson.Null {
		v := e.String()
		res.Explanation = &v
	}
	return res, nil
}

// stringList reads an array of scalars as strings; a lone string becomes a
// one-element list.
func stringList(v gjson.Result) []string {
	out := []string{}
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if s := strings.TrimSpace(item.String()); s != "" && !item.IsObject() && !item.IsArray() {
				out = append(out, s)
			}
		}
	case v.Type == gjson.String && strings.TrimSpace(v.Str) != "":
		out = append(out, strings.TrimSpace(v.Str))
	}
	return out
}
