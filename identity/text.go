package identity

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const ShortDescriptionLen = 160

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonSlugRegex    = regexp.MustCompile(`[^a-z0-9]+`)
)

// Fold strips diacritics: "Bogotá" -> "Bogota".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slugify builds a URL slug from the given parts, skipping blanks. The ref
// is appended last so slugs stay unique per listing.
func Slugify(ref int64, parts ...string) string {
	var segs []string
	for _, p := range parts {
		p = strings.ToLower(Fold(strings.TrimSpace(p)))
		p = strings.Trim(nonSlugRegex.ReplaceAllString(p, "-"), "-")
		if p != "" {
			segs = append(segs, p)
		}
	}
	segs = append(segs, strconv.FormatInt(ref, 10))
	return strings.Join(segs, "-")
}

// PlainText renders an HTML fragment as whitespace-collapsed text. Plain
// input passes through unchanged apart from whitespace.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	doc.Find("br, p, li, div").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return collapse(doc.Text())
}

// ShortDescription prefers an explicit summary and otherwise truncates the
// plain-text description on a word boundary.
func ShortDescription(explicit, description string) string {
	if s := PlainText(explicit); s != "" {
		return truncate(s, ShortDescriptionLen)
	}
	return truncate(PlainText(description), ShortDescriptionLen)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := r[:max]
	for i := len(cut) - 1; i > max/2; i-- {
		if cut[i] == ' ' {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRight(string(cut), " ,.;:") + "..."
}

func collapse(s string) string {
	return strings.TrimSpace(multiSpaceRegex.ReplaceAllString(s, " "))
}
