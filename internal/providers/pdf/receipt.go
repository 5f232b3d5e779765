package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData is the donation receipt as it is printed. Amounts are preformatted.
type ReceiptData struct {
	ReceiptNumber         string
	DonorName             string
	DonorEmail            string
	OrphanageName         string
	OrphanageAddress      string
	Amount                string
	Currency              string
	Method                string
	ProviderTransactionID string
	DatePaid              string
	Note                  string
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) ([]byte, error) {
	if receipt.ReceiptNumber == "" || receipt.Amount == "" {
		return nil, errors.New("receipt requires number and amount")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(30,
		text.NewCol(8, "Donation receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "No. "+receipt.ReceiptNumber, props.Text{
			Size:  9,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Donor", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.DonorName, props.Text{Top: 5}),
			text.New(receipt.DonorEmail, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Beneficiary", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.OrphanageName, props.Text{Top: 5}),
			text.New(receipt.OrphanageAddress, props.Text{Top: 10}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, receipt.Currency+" "+receipt.Amount+" received on "+receipt.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)
	m.AddRow(5, line.NewCol(12))

	rows := [][2]string{
		{"Payment method", receipt.Method},
		{"Transaction reference", receipt.ProviderTransactionID},
		{"Date paid", receipt.DatePaid},
	}
	if receipt.Note != "" {
		rows = append(rows, [2]string{"Note", receipt.Note})
	}
	for _, row := range rows {
		m.AddRow(8,
			text.NewCol(4, row[0], props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(8, row[1], props.Text{Size: 9}),
		)
	}

	m.AddRow(20,
		text.NewCol(12, "Thank you for your generosity.", props.Text{
			Size:  10,
			Top:   10,
			Align: align.Center,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
