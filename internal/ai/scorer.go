package ai

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/logger"
	"github.com/spigell/job-harvester/internal/posting"
	"github.com/spigell/job-harvester/internal/utils"
)

//go:embed prompts/score.md
var scorePrompt string

const (
	scoreSystemPrompt  = "You are a talent intelligence engine. Output STRICT JSON."
	scoreMaxTokens     = 512
	maxRawPayloadRunes = 2000
	maxScoreDescRunes  = 15000
	defaultMaxLogLen   = 200

	// NoReason is the rationale used when the model answer carries none.
	NoReason = "No reason provided"

	MinScore = 0
	MaxScore = 100
)

// Score is the outcome of one scoring call. A failed call still carries a
// usable zero score; Err tells the caller why.
type Score struct {
	Value  int    `json:"value"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (s Score) Meets(threshold int) bool {
	return s.Value >= threshold
}

type Scorer struct {
	backend   Backend
	logger    *zap.Logger
	maxLogLen int
}

func NewScorer(backend Backend, log *zap.Logger, maxLogLength int) *Scorer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLen
	}
	return &Scorer{
		backend:   backend,
		logger:    logger.WithFields(log),
		maxLogLen: maxLogLength,
	}
}

// Score rates how well the candidate profile fits the posting on a 0-100
// scale. It never fails: transport errors and unparsable answers degrade to a
// zero score.
func (s *Scorer) Score(ctx context.Context, profileJSON string, p *posting.Posting) Score {
	log := logger.WithPosting(s.logger, p.Key())
	prompt := buildScorePrompt(profileJSON, p)

	log.Debug("score request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.backend.Complete(ctx, []Message{
		{Role: RoleSystem, Content: scoreSystemPrompt},
		{Role: RoleUser, Content: prompt},
	}, Options{Temperature: 0, MaxTokens: scoreMaxTokens})
	if err != nil {
		log.Warn("scoring call failed", zap.Error(err))
		return Score{Value: 0, Reason: "Error: " + err.Error(), Err: err}
	}

	log.Debug("score response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	return parseScore(raw)
}

func parseScore(raw string) Score {
	data, _ := decodeObject(raw)

	value, _ := coerceInt(data["score"])
	reason := coerceString(data["reason"])
	if reason == "" {
		reason = NoReason
	}

	return Score{Value: clamp(value, MinScore, MaxScore), Reason: reason}
}

func buildScorePrompt(profileJSON string, p *posting.Posting) string {
	rawJSON, err := json.Marshal(p.Raw)
	if err != nil || p.Raw == nil {
		rawJSON = []byte("{}")
	}

	return strings.NewReplacer(
		"{{CV_PROFILE_JSON}}", profileJSON,
		"{{JOB_TITLE}}", p.Title,
		"{{JOB_COMPANY}}", p.Company,
		"{{APPLY_URL}}", p.ApplyURL,
		"{{JOB_RAW}}", utils.Truncate(string(rawJSON), maxRawPayloadRunes),
		"{{JOB_DESCRIPTION}}", utils.Truncate(utils.StripHTML(p.Description), maxScoreDescRunes),
	).Replace(scorePrompt)
}
