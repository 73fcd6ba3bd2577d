// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package render

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// classPattern constrains class values to plain token lists.
var classPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_ ]+$`)

// dimensionPattern constrains width/height to bare pixel counts.
var dimensionPattern = regexp.MustCompile(`^[0-9]{1,4}$`)

// newSanitizePolicy builds the output allowlist.
//
// Permitted: text structure (paragraphs, headings, lists, tables,
// quotes, emphasis), code, images, links, and the structural elements
// the tree transforms emit (div, span, figure, figcaption, button).
// The scheme set is the union of image and link schemes; links are
// narrowed per element in the tree pass before sanitization.
func newSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"strong", "em", "del", "blockquote",
		"ul", "ol", "li",
		"table", "thead", "tbody", "tr", "th", "td",
		"pre", "code",
		"div", "span", "figure", "figcaption",
	)

	p.AllowAttrs("class").Matching(classPattern).OnElements(
		"p", "div", "span", "pre", "code", "figure", "figcaption", "img", "a", "button",
	)

	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowAttrs("loading").Matching(regexp.MustCompile(`^(lazy|eager)$`)).OnElements("img")
	p.AllowAttrs("width", "height").Matching(dimensionPattern).OnElements("img")

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AllowAttrs("rel").OnElements("a")

	p.AllowAttrs("type").Matching(regexp.MustCompile(`^button$`)).OnElements("button")
	p.AllowAttrs("data-action").Matching(regexp.MustCompile(`^copy$`)).OnElements("button")
	p.AllowAttrs("data-language").Matching(classPattern).OnElements("figure")

	p.AllowAttrs("align").Matching(regexp.MustCompile(`^(left|center|right)$`)).OnElements("th", "td")

	p.RequireParseableURLs(true)
	p.AllowURLSchemes("http", "https", "data", "blob", "mailto", "tel")

	return p
}
