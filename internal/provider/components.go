package provider

import (
	"regexp"
	"strings"
	"time"
)

// Component is one structural part of a template send request
type Component struct {
	Type       string      `json:"type"` // header, body, footer, button
	SubType    string      `json:"sub_type,omitempty"`
	Index      string      `json:"index,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Parameter is one typed template parameter
type Parameter struct {
	Type     string    `json:"type"` // text, image, document, video, currency, date_time
	Text     string    `json:"text,omitempty"`
	Image    *Media    `json:"image,omitempty"`
	Document *Media    `json:"document,omitempty"`
	Video    *Media    `json:"video,omitempty"`
	Currency *Currency `json:"currency,omitempty"`
	DateTime *DateTime `json:"date_time,omitempty"`
}

// Media is a link-referenced media parameter
type Media struct {
	Link string `json:"link"`
}

// Currency is a localized money amount
type Currency struct {
	FallbackValue string `json:"fallback_value"`
	Code          string `json:"code"`
	Amount1000    int64  `json:"amount_1000"`
}

// DateTime is a localized timestamp parameter
type DateTime struct {
	FallbackValue string `json:"fallback_value"`
}

var (
	urlRe      = regexp.MustCompile(`^https?://`)
	currencyRe = regexp.MustCompile(`^([A-Z]{3})\s+(\d+)(?:\.(\d{1,2}))?$`)

	imageExts    = []string{".jpg", ".jpeg", ".png", ".webp"}
	videoExts    = []string{".mp4", ".3gp"}
	documentExts = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt"}
)

// SniffParameter types a raw parameter value by inspecting its content: media
// URLs by extension, "CCY 12.34" currency amounts, RFC3339 date-times, and
// plain text for everything else.
func SniffParameter(value string) Parameter {
	v := strings.TrimSpace(value)

	if urlRe.MatchString(v) {
		ext := strings.ToLower(pathExtension(v))
		switch {
		case containsString(imageExts, ext):
			return Parameter{Type: "image", Image: &Media{Link: v}}
		case containsString(videoExts, ext):
			return Parameter{Type: "video", Video: &Media{Link: v}}
		case containsString(documentExts, ext):
			return Parameter{Type: "document", Document: &Media{Link: v}}
		}
		// URL without a recognized media extension is plain text
		return Parameter{Type: "text", Text: v}
	}

	if m := currencyRe.FindStringSubmatch(v); m != nil {
		return Parameter{Type: "currency", Currency: &Currency{
			FallbackValue: v,
			Code:          m[1],
			Amount1000:    currencyAmount1000(m[2], m[3]),
		}}
	}

	if _, err := time.Parse(time.RFC3339, v); err == nil {
		return Parameter{Type: "date_time", DateTime: &DateTime{FallbackValue: v}}
	}

	return Parameter{Type: "text", Text: v}
}

// BuildComponents assembles header/body/button components from raw values.
// Empty sections are omitted.
func BuildComponents(header string, body []string, buttonURLSuffix string) []Component {
	components := []Component{}

	if header != "" {
		components = append(components, Component{
			Type:       "header",
			Parameters: []Parameter{SniffParameter(header)},
		})
	}

	if len(body) > 0 {
		params := make([]Parameter, 0, len(body))
		for _, v := range body {
			params = append(params, SniffParameter(v))
		}
		components = append(components, Component{Type: "body", Parameters: params})
	}

	if buttonURLSuffix != "" {
		components = append(components, Component{
			Type:       "button",
			SubType:    "url",
			Index:      "0",
			Parameters: []Parameter{{Type: "text", Text: buttonURLSuffix}},
		})
	}

	return components
}

// pathExtension extracts the file extension from a URL path, ignoring any
// query string or fragment.
func pathExtension(rawURL string) string {
	s := rawURL
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i:]
	}
	return ""
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// currencyAmount1000 converts whole/fraction strings into the provider's
// thousandths representation.
func currencyAmount1000(whole, fraction string) int64 {
	var amount int64
	for _, c := range whole {
		amount = amount*10 + int64(c-'0')
	}
	amount *= 1000

	if fraction != "" {
		var frac int64
		for _, c := range fraction {
			frac = frac*10 + int64(c-'0')
		}
		if len(fraction) == 1 {
			frac *= 100
		} else {
			frac *= 10
		}
		amount += frac
	}
	return amount
}
