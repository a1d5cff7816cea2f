package bulk

import (
	"context"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
)

// ParsingStrategy is the seam between file formats and the intake
// pipeline. Excel is the only format operators upload today.
type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) ([]model.IntakeRecord, error)
	Validate(ctx context.Context, records []model.IntakeRecord) error
}

type ExcelStrategy struct {
	parser    *Parser
	validator *Validator
}

func NewExcelStrategy() ParsingStrategy {
	return &ExcelStrategy{
		parser:    NewParser(),
		validator: NewValidator(),
	}
}

func (s *ExcelStrategy) Parse(ctx context.Context, data []byte) ([]model.IntakeRecord, error) {
	return s.parser.Parse(ctx, data)
}

func (s *ExcelStrategy) Validate(ctx context.Context, records []model.IntakeRecord) error {
	return s.validator.Validate(ctx, records)
}
