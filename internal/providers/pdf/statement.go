package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type StatementData struct {
	ProgramName    string
	AffiliateName  string
	AffiliateEmail string
	PayoutID       string
	Status         string
	Method         string
	Reference      string
	CreatedAt      string
	CompletedAt    string
	Total          string

	Lines []StatementLine
}

type StatementLine struct {
	Date    string
	Invoice string
	Tier    string
	Rate    string
	Amount  string
}

var (
	headerText = props.Text{Style: fontstyle.Bold, Size: 9}
	cellText   = props.Text{Size: 9}
)

func (p *MarotoProvider) GenerateStatement(ctx context.Context, data StatementData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, data.ProgramName, props.Text{Size: 11, Style: fontstyle.Bold}),
	)
	m.AddRow(10,
		text.NewCol(12, "Payout statement", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	meta := []string{
		"Payout: " + data.PayoutID,
		"Status: " + data.Status,
		"Method: " + data.Method,
		"Created: " + data.CreatedAt,
	}
	if data.CompletedAt != "" {
		meta = append(meta, "Paid: "+data.CompletedAt)
	}
	if data.Reference != "" {
		meta = append(meta, "Reference: "+data.Reference)
	}
	left := col.New(6)
	for i, line := range meta {
		left.Add(text.New(line, props.Text{Top: float64(i * 4), Size: 9}))
	}
	m.AddRow(float64(len(meta)*4+6),
		left,
		col.New(6).Add(
			text.New(data.AffiliateName, props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(data.AffiliateEmail, props.Text{Top: 5, Size: 9, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(3, "Date", headerText),
		text.NewCol(4, "Invoice", headerText),
		text.NewCol(2, "Tier", headerText),
		text.NewCol(1, "Rate", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, line := range data.Lines {
		m.AddRow(7,
			text.NewCol(3, line.Date, cellText),
			text.NewCol(4, line.Invoice, cellText),
			text.NewCol(2, line.Tier, cellText),
			text.NewCol(1, line.Rate, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", headerText),
		text.NewCol(2, data.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		text.NewCol(12, fmt.Sprintf("%d commission(s)", len(data.Lines)), props.Text{Size: 8}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
