// Package cleaner turns raw article text into the normalised clean_text
// field that downstream steps read.
package cleaner

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// Name is the registry key of the cleaner
const Name = "cleaner"

// Descriptor declares the cleaner's inputs and outputs
var Descriptor = processor.Descriptor{
	Name:     Name,
	Version:  "1.1.0",
	Requires: []string{article.FieldText},
	Provides: []string{article.FieldCleanText},
}

// Cleaner normalises text: optional HTML stripping, NFKC normalisation and
// whitespace collapsing.
type Cleaner struct {
	processor.Base
	stripHTML bool
	normalize bool
}

// New creates a cleaner. Recognised keys: strip_html (default false) and
// normalize (default true).
func New(cfg processor.Config) (processor.Processor, error) {
	stripHTML, err := cfg.Bool("strip_html")
	if err != nil {
		return nil, err
	}
	normalize, err := cfg.BoolDefault("normalize", true)
	if err != nil {
		return nil, err
	}
	return &Cleaner{
		Base:      processor.NewBase(Descriptor, cfg),
		stripHTML: stripHTML,
		normalize: normalize,
	}, nil
}

func (c *Cleaner) Run(ctx context.Context, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	text := bag.String(article.FieldText)

	if c.stripHTML && text != "" {
		stripped, err := StripHTML(text)
		if err != nil {
			return nil, err
		}
		text = stripped
	}

	return article.FieldBag{article.FieldCleanText: Clean(text, c.normalize)}, nil
}

// Clean collapses every run of whitespace to a single space and trims the
// result, optionally applying NFKC normalisation first.
func Clean(text string, normalize bool) string {
	if normalize {
		text = norm.NFKC.String(text)
	}
	return strings.Join(strings.Fields(text), " ")
}

// StripHTML returns the visible text of an HTML fragment.
func StripHTML(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var b strings.Builder
	collectText(doc.Selection, &b)
	return b.String(), nil
}

var blockElements = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "tr": true, "td": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func collectText(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch name {
		case "#text":
			b.WriteString(c.Text())
		case "script", "style", "noscript", "#comment":
		default:
			// block boundaries separate words
			if blockElements[name] {
				b.WriteByte(' ')
			}
			collectText(c, b)
			if blockElements[name] {
				b.WriteByte(' ')
			}
		}
	})
}
