package web

import (
	"embed"
	"html/template"
	"strconv"
)

//go:embed static/app.css
var appCSS []byte

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"yen": formatYen,
}).ParseFS(templatesFS, "templates/*.html"))

// formatYen formats n with thousands separators, e.g. 6500 -> "6,500"
func formatYen(n int) string {
	s := strconv.Itoa(n)
	neg := false
	if n < 0 {
		neg = true
		s = s[1:]
	}

	out := make([]byte, 0, len(s)+len(s)/3+1)
	if neg {
		out = append(out, '-')
	}
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out)
}
