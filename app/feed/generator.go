package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type Generator struct {
	baseURL string
	version string
	printer *message.Printer
}

func NewGenerator(baseURL, version string) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		printer: message.NewPrinter(language.French),
	}
}

// Run renders one section as an RSS 2.0 channel, listings newest first.
func (g *Generator) Run(section Section, builtAt time.Time) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	category := section.Category
	g.writeElement(&buf, "title", cmp.Or(category.Name, category.Slug), 4)
	g.writeElement(&buf, "link", fmt.Sprintf("%s/categories/%s", g.baseURL, category.Slug), 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Latest listings in %s", cmp.Or(category.Name, category.Slug)), 4)

	selfLink := fmt.Sprintf("%s/feeds/%s", g.baseURL, category.Slug)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := builtAt
	if len(section.Listings) > 0 {
		lastBuildDate = section.Listings[0].CreatedAt
	}
	if lastBuildDate.IsZero() {
		lastBuildDate = time.Now()
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Listing-Comb/%s", g.version), 4)
	g.writeElement(&buf, "language", "fr", 4)

	for _, listing := range section.Listings {
		g.writeItem(&buf, listing)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, listing Listing) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(listing.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", listing.Title, 6)
	g.writeElement(buf, "link", fmt.Sprintf("%s/listings/%s", g.baseURL, listing.ID), 6)
	g.writeElement(buf, "description", g.FormatPrice(listing.Price), 6)

	if !listing.CreatedAt.IsZero() {
		g.writeElement(buf, "pubDate", listing.CreatedAt.Format(time.RFC1123Z), 6)
	}

	if listing.Seller != nil && listing.Seller.FullName != "" {
		g.writeElement(buf, "author", listing.Seller.FullName, 6)
	}

	// Both may be empty for listings whose category is gone
	g.writeElement(buf, "category", listing.CategorySlug, 6)
	g.writeElement(buf, "category", listing.ParentCategorySlug, 6)

	buf.WriteString("    </item>\n")
}

// FormatPrice renders a price in whole dinars with French digit grouping.
func (g *Generator) FormatPrice(price int64) string {
	return g.printer.Sprintf("%d DA", price)
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
