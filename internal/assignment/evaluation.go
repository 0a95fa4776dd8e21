package assignment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kazz187/devguild/pkg/cerr"
)

const (
	minScore = 0
	maxScore = 5
)

type Scores struct {
	Speed          float64 `yaml:"speed" json:"speed"`
	Accuracy       float64 `yaml:"accuracy" json:"accuracy"`
	Communication  float64 `yaml:"communication" json:"communication"`
	ProblemSolving float64 `yaml:"problem_solving" json:"problem_solving"`
	CodeQuality    float64 `yaml:"code_quality" json:"code_quality"`
	Independence   float64 `yaml:"independence" json:"independence"`
	Alignment      float64 `yaml:"alignment" json:"alignment"`
	Efficiency     float64 `yaml:"efficiency" json:"efficiency"`
	Initiative     float64 `yaml:"initiative" json:"initiative"`
	Collaboration  float64 `yaml:"collaboration" json:"collaboration"`
}

type criterion struct {
	name  string
	value float64
}

func (s Scores) criteria() []criterion {
	return []criterion{
		{"speed", s.Speed},
		{"accuracy", s.Accuracy},
		{"communication", s.Communication},
		{"problem_solving", s.ProblemSolving},
		{"code_quality", s.CodeQuality},
		{"independence", s.Independence},
		{"alignment", s.Alignment},
		{"efficiency", s.Efficiency},
		{"initiative", s.Initiative},
		{"collaboration", s.Collaboration},
	}
}

func (s Scores) Validate() error {
	verr := cerr.NewError(cerr.InvalidArgument, "invalid evaluation", nil)
	for _, c := range s.criteria() {
		if c.value < minScore || c.value > maxScore {
			verr.AddViolation(c.name, "range", "score must be between 0 and 5")
		}
	}
	if len(verr.Details) > 0 {
		return verr
	}
	return nil
}

// Overall is the exact arithmetic mean of the ten criteria. Rounding is left
// to presentation.
func (s Scores) Overall() decimal.Decimal {
	crit := s.criteria()
	sum := decimal.Zero
	for _, c := range crit {
		sum = sum.Add(decimal.NewFromFloat(c.value))
	}
	return sum.Div(decimal.NewFromInt(int64(len(crit))))
}

type Evaluation struct {
	Scores       Scores          `yaml:"scores" json:"scores"`
	Comments     string          `yaml:"comments" json:"comments"`
	OverallScore decimal.Decimal `yaml:"overall_score" json:"overall_score"`
	EvaluatedBy  string          `yaml:"evaluated_by" json:"evaluated_by"`
	EvaluatedAt  time.Time       `yaml:"evaluated_at" json:"evaluated_at"`
}

// NewEvaluation fixes the overall score at submission time.
func NewEvaluation(scores Scores, comments, evaluatedBy string, now time.Time) *Evaluation {
	return &Evaluation{
		Scores:       scores,
		Comments:     comments,
		OverallScore: scores.Overall(),
		EvaluatedBy:  evaluatedBy,
		EvaluatedAt:  now,
	}
}

// RoundScore renders a score with two decimals, halves rounded up.
func RoundScore(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
