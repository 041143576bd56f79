package export

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/warp/partner-settlement/settlement"
)

// =============================================================================
// HTML PIVOT - Email body
// =============================================================================

var pivotTemplate = template.Must(template.New("pivot").Funcs(template.FuncMap{
	"won":     settlement.Won,
	"grouped": settlement.Grouped,
	"cell": func(cells map[string]settlement.CategoryTotal, c string) settlement.CategoryTotal {
		return cells[c]
	},
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: sans-serif;">
<h2>{{.Title}}</h2>
<p>전체 합계: <strong>{{won .Pivot.GrandTotal}}</strong></p>
<table border="1" cellspacing="0" cellpadding="6" style="border-collapse: collapse; text-align: right;">
<thead style="background: #f0f0f5; text-align: center;">
<tr>
<th rowspan="2">매장명</th>
{{- range .Pivot.Categories}}
<th colspan="2">{{.}}</th>
{{- end}}
<th rowspan="2">합계</th>
</tr>
<tr>
{{- range .Pivot.Categories}}
<th>수량</th><th>금액</th>
{{- end}}
</tr>
</thead>
<tbody>
{{- $cats := .Pivot.Categories}}
{{- range .Pivot.Rows}}
<tr>
<td style="text-align: left;">{{.StoreName}}</td>
{{- $cells := .Cells}}
{{- range $cats}}{{$c := cell $cells .}}
<td>{{grouped $c.QuantitySum}}</td><td>{{won $c.AmountSum}}</td>
{{- end}}
<td><strong>{{won .Total}}</strong></td>
</tr>
{{- end}}
<tr style="font-weight: bold;">
<td style="text-align: left;">전체 합계</td>
{{- $totals := .Pivot.Totals}}
{{- range $cats}}{{$c := cell $totals .}}
<td>{{grouped $c.QuantitySum}}</td><td>{{won $c.AmountSum}}</td>
{{- end}}
<td>{{won .Pivot.GrandTotal}}</td>
</tr>
</tbody>
</table>
</body>
</html>
`))

// HTMLPivot renders the category pivot of r as a standalone HTML document.
func HTMLPivot(title string, r settlement.Result) (string, error) {
	var buf bytes.Buffer
	err := pivotTemplate.Execute(&buf, struct {
		Title string
		Pivot settlement.Pivot
	}{Title: title, Pivot: settlement.PivotByCategory(r)})
	if err != nil {
		return "", fmt.Errorf("failed to render pivot: %w", err)
	}
	return buf.String(), nil
}
