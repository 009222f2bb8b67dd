package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Field is one labelled value on a statement.
type Field struct {
	Label string
	Value string
}

// Statement is a single-document summary such as a cancellation settlement.
type Statement struct {
	Title    string
	Subtitle string
	Fields   []Field
	Lines    Dataset
	Totals   []Field
	Footer   string
}

// RenderStatement lays out a portrait statement: header fields, an itemised table and totals.
func RenderStatement(s Statement) ([]byte, error) {
	if s.Title == "" {
		return nil, fmt.Errorf("statement requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, s.Title, "", 1, "L", false, 0, "")
	if s.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, s.Subtitle, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	writeFields(pdf, s.Fields)

	if len(s.Lines.Headers) > 0 {
		if err := s.Lines.Validate(); err != nil {
			return nil, err
		}
		pdf.Ln(4)
		colWidth := 180.0 / float64(len(s.Lines.Headers))
		pdf.SetFont("Arial", "B", 9)
		for _, h := range s.Lines.Headers {
			pdf.CellFormat(colWidth, 7, h, "B", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, row := range s.Lines.Rows {
			for i, cell := range row {
				align := "L"
				if i > 0 {
					align = "R"
				}
				pdf.CellFormat(colWidth, 6, cell, "", 0, align, false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	if len(s.Totals) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		writeFields(pdf, s.Totals)
	}

	if s.Footer != "" {
		pdf.Ln(8)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 4, s.Footer, "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFields(pdf *gofpdf.Fpdf, fields []Field) {
	for _, f := range fields {
		pdf.CellFormat(60, 6, f.Label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, f.Value, "", 1, "L", false, 0, "")
	}
}
