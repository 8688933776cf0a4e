package ai

import (
	"context"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/logger"
	"github.com/spigell/job-harvester/internal/posting"
	"github.com/spigell/job-harvester/internal/utils"
)

//go:embed prompts/escalate.md
var escalatePrompt string

const (
	escalateSystemPrompt = "You are a skeptical hiring manager. Output STRICT JSON only. No markdown, no preamble."
	escalateTemperature  = 0.7
	escalateMaxTokens    = 1024
	maxEscalateDescRunes = 10000
	maxCVRunes           = 20000

	RiskQuestionCount = 3
)

// Escalation is the adversarial review of a promising match.
type Escalation struct {
	RiskQuestions []string `json:"risk_questions,omitempty"`
	OutreachHook  string   `json:"outreach_hook,omitempty"`
	Err           error    `json:"-"`
}

// Available reports whether the review produced anything worth showing.
func (e Escalation) Available() bool {
	return e.Err == nil && (len(e.RiskQuestions) > 0 || e.OutreachHook != "")
}

type Escalator struct {
	backend   Backend
	logger    *zap.Logger
	maxLogLen int
}

func NewEscalator(backend Backend, log *zap.Logger, maxLogLength int) *Escalator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLen
	}
	return &Escalator{
		backend:   backend,
		logger:    logger.WithFields(log),
		maxLogLen: maxLogLength,
	}
}

// Analyze asks the model for risk questions and an outreach hook. Failures
// come back as an unavailable Escalation.
func (e *Escalator) Analyze(ctx context.Context, cvText string, p *posting.Posting) Escalation {
	log := logger.WithPosting(e.logger, p.Key())
	prompt := strings.NewReplacer(
		"{{JOB_TITLE}}", p.Title,
		"{{JOB_COMPANY}}", p.Company,
		"{{JOB_DESCRIPTION}}", utils.Truncate(utils.StripHTML(p.Description), maxEscalateDescRunes),
		"{{CV_FULL_TEXT}}", utils.Truncate(cvText, maxCVRunes),
	).Replace(escalatePrompt)

	log.Debug("escalation request", zap.Int("prompt_length", utf8.RuneCountInString(prompt)))

	raw, err := e.backend.Complete(ctx, []Message{
		{Role: RoleSystem, Content: escalateSystemPrompt},
		{Role: RoleUser, Content: prompt},
	}, Options{Temperature: escalateTemperature, MaxTokens: escalateMaxTokens})
	if err != nil {
		log.Warn("escalation call failed", zap.Error(err))
		return Escalation{Err: err}
	}

	log.Debug("escalation response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	result := parseEscalation(raw)
	if !result.Available() {
		log.Info("escalation returned nothing usable")
	}
	return result
}

func parseEscalation(raw string) Escalation {
	data, _ := decodeObject(raw)

	questions := coerceStrings(data["interview_questions"])
	if len(questions) == 0 {
		questions = coerceStrings(data["risk_questions"])
	}
	if len(questions) > RiskQuestionCount {
		questions = questions[:RiskQuestionCount]
	}

	return Escalation{
		RiskQuestions: questions,
		OutreachHook:  coerceString(data["outreach_hook"]),
	}
}
