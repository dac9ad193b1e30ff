package market

import (
	"bytes"
	"html/template"
)

const pagePrompt = `Generate a clean, conversion-optimized landing page HTML for:

Headline: %s
Subheadline: %s
CTA: %s

Requirements:
- Mobile responsive
- Clear CTA button
- Professional design

Return only the complete HTML.`

const analysisPrompt = `Analyze these A/B test results:

%s

Respond with JSON:
{"winner": "variant_id of the best performer", "confidence": "high/medium/low", "key_insight": "main takeaway", "recommendations": []}`

var fallbackPage = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Headline}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; max-width: 800px; margin: 0 auto; padding: 40px 20px; text-align: center; }
        h1 { font-size: 48px; margin-bottom: 20px; }
        h2 { font-size: 24px; color: #666; margin-bottom: 40px; }
        .cta { background: #4A90E2; color: white; padding: 15px 40px; font-size: 18px; border: none; border-radius: 5px; cursor: pointer; }
        .cta:hover { background: #357ABD; }
    </style>
</head>
<body>
    <h1>{{.Headline}}</h1>
    <h2>{{.Subheadline}}</h2>
    <button class="cta" onclick="trackConversion()">{{.CTA}}</button>
    <script>
        function trackConversion() {
            fetch('/api/track-conversion', {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({test_id: {{.TestID}}, variant_id: {{.VariantID}}})
            });
            alert('Thank you for your interest!');
        }
    </script>
</body>
</html>
`))

// FallbackHTML renders the built-in landing page for a variant.
func FallbackHTML(v Variant, testID, variantID string) string {
	data := struct {
		Headline, Subheadline, CTA, TestID, VariantID string
	}{v.Headline, v.Subheadline, v.CTA, testID, variantID}
	if data.Headline == "" {
		data.Headline = "Welcome"
	}
	if data.Subheadline == "" {
		data.Subheadline = "Discover something amazing"
	}
	if data.CTA == "" {
		data.CTA = "Learn More"
	}

	var buf bytes.Buffer
	if err := fallbackPage.Execute(&buf, data); err != nil {
		return "<!DOCTYPE html><html><body><h1>" + template.HTMLEscapeString(data.Headline) + "</h1></body></html>"
	}
	return buf.String()
}
