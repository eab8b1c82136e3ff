package export

import (
	"bytes"
	"fmt"
	"html"
)

// ExcelExporter renders datasets as an HTML table that Excel opens natively.
// The output is served with an application/vnd.ms-excel content type.
type ExcelExporter struct{}

// NewExcelExporter builds an Excel-compatible exporter.
func NewExcelExporter() *ExcelExporter {
	return &ExcelExporter{}
}

// Render produces an HTML table document for the dataset.
func (e *ExcelExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("excel export requires at least one header")
	}
	buf := &bytes.Buffer{}
	buf.Write(utf8BOM)
	buf.WriteString("<html><head><meta charset=\"UTF-8\"></head><body>")
	if title != "" {
		fmt.Fprintf(buf, "<h3>%s</h3>", html.EscapeString(title))
	}
	buf.WriteString("<table border=\"1\"><thead><tr>")
	for _, header := range data.Headers {
		fmt.Fprintf(buf, "<th>%s</th>", html.EscapeString(header))
	}
	buf.WriteString("</tr></thead><tbody>")
	for _, row := range data.Rows {
		buf.WriteString("<tr>")
		for _, header := range data.Headers {
			fmt.Fprintf(buf, "<td>%s</td>", html.EscapeString(row[header]))
		}
		buf.WriteString("</tr>")
	}
	buf.WriteString("</tbody></table></body></html>")
	return buf.Bytes(), nil
}
