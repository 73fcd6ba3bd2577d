// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package render turns answer markdown into sanitized structured HTML
// plus reference cards.
//
// # Description
//
// The pipeline runs in a fixed order: markdown to HTML (GFM tables,
// raw HTML passed through), parse to a node tree, tree transforms
// (image address pre-rewrite, per-element link scheme enforcement,
// paragraph structural correction, code block shaping), then the
// sanitizing allowlist. The pre-rewrite MUST precede sanitization:
// relative image paths carry no scheme and would otherwise be rejected
// at the allowlist.
//
// # Limitations
//
//   - Output is a sanitized HTML fragment, not a full document; hosts
//     wrap it (the transcript exporter adds the document shell).
//   - Anything outside the allowlist is silently dropped, never an
//     error.
package render

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"

	"github.com/AleutianAI/SeaChat/pkg/resolve"
	"github.com/AleutianAI/SeaChat/pkg/session"
)

// linkSchemes are the schemes a link may carry. Enforced per element
// in the tree pass: the sanitizer's scheme set is policy-global and
// images legitimately use data/blob, which links must not.
var linkSchemes = []string{"http://", "https://", "mailto:", "tel:"}

// blockTags are the elements an inline-text container must never host.
var blockTags = map[string]bool{
	"pre":        true,
	"table":      true,
	"ul":         true,
	"ol":         true,
	"blockquote": true,
	"figure":     true,
	"div":        true,
}

// =============================================================================
// Pipeline
// =============================================================================

// RenderInput is one message to render: its markdown text plus the
// references and fallback scope that drive image resolution.
type RenderInput struct {
	Text           string
	References     []session.Reference
	FallbackFileID string
}

// RenderedMessage is the pipeline output.
type RenderedMessage struct {
	// HTML is the sanitized fragment.
	HTML string

	// Cards are the reference cards in display-index order. Images are
	// not loaded yet; see Pipeline.LoadCardImages.
	Cards []ReferenceCard
}

// Config configures a Pipeline. Resolver is required.
type Config struct {
	Resolver *resolve.Resolver

	// Images lists secondary page images for reference cards. Optional;
	// without it cards render with zero images.
	Images ImageLister

	// Logger for degradation diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// Pipeline renders messages. Safe for concurrent use.
type Pipeline struct {
	resolver *resolve.Resolver
	images   ImageLister
	md       goldmark.Markdown
	policy   *bluemonday.Policy
	log      *slog.Logger
}

// New creates a render pipeline.
func New(cfg Config) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		resolver: cfg.Resolver,
		images:   cfg.Images,
		// Raw HTML passes through the converter; the sanitizer is the
		// gate.
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
		),
		policy: newSanitizePolicy(),
		log:    log,
	}
}

// Render runs the full pipeline on one message.
//
// Works for committed and in-flight text alike; partial markdown
// renders on a best-effort basis. Resolution misses degrade to
// placeholder elements.
func (p *Pipeline) Render(input RenderInput) (*RenderedMessage, error) {
	var converted bytes.Buffer
	if err := p.md.Convert([]byte(input.Text), &converted); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(converted.String()))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	body := findBody(doc)
	if body == nil {
		return nil, fmt.Errorf("parse html: no body node")
	}

	p.transform(body, input)

	fragment, err := renderChildren(body)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	return &RenderedMessage{
		HTML:  p.policy.Sanitize(fragment),
		Cards: p.buildCards(input.References),
	}, nil
}

// =============================================================================
// Tree Transforms
// =============================================================================

// transform applies the pre-sanitize tree passes, depth first. Children
// are captured before visiting because passes replace nodes in place.
func (p *Pipeline) transform(n *html.Node, input RenderInput) {
	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		p.transform(child, input)
		child = next
	}

	if n.Type != html.ElementNode {
		return
	}
	switch n.Data {
	case "img":
		p.rewriteImage(n, input)
	case "a":
		enforceLinkScheme(n)
	case "p":
		correctParagraph(n)
	case "pre":
		p.shapeCodeBlock(n)
	}
}

// rewriteImage resolves the image address in place. An unresolved
// address degrades to a placeholder element.
func (p *Pipeline) rewriteImage(n *html.Node, input RenderInput) {
	src := getAttr(n, "src")
	result := p.resolver.Resolve(src, input.References, input.FallbackFileID)
	if !result.Resolved {
		p.log.Debug("image address unresolved", "src", src)
		replaceNode(n, placeholderNode())
		return
	}
	setAttr(n, "src", result.URL)
	setAttr(n, "loading", "lazy")
	setAttr(n, "class", "chat-image")
}

// enforceLinkScheme drops the address of a link outside the permitted
// schemes. The sanitizer then strips the bare tag, keeping its text.
func enforceLinkScheme(n *html.Node) {
	href := strings.TrimSpace(getAttr(n, "href"))
	if href == "" {
		return
	}
	for _, scheme := range linkSchemes {
		if strings.HasPrefix(strings.ToLower(href), scheme) {
			setAttr(n, "target", "_blank")
			setAttr(n, "rel", "noopener noreferrer")
			return
		}
	}
	removeAttr(n, "href")
	removeAttr(n, "target")
	removeAttr(n, "rel")
}

// correctParagraph re-renders a paragraph hosting block children as a
// generic block container.
func correctParagraph(n *html.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && blockTags[child.Data] {
			n.Data = "div"
			setAttr(n, "class", "chat-block")
			return
		}
	}
}

// shapeCodeBlock rewrites fenced code output.
//
// A language-tagged block becomes a labeled figure with a copy
// affordance. An unlabeled single-line block collapses to inline code.
// Everything else stays a plain pre/code block.
func (p *Pipeline) shapeCodeBlock(pre *html.Node) {
	code := firstElementChild(pre)
	if code == nil || code.Data != "code" {
		return
	}

	lang := languageOf(code)
	if lang != "" {
		replaceNode(pre, codeFigure(pre, lang))
		return
	}

	text := strings.TrimRight(textContent(code), "\n")
	if !strings.Contains(text, "\n") {
		inline := &html.Node{Type: html.ElementNode, Data: "code"}
		inline.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		replaceNode(pre, inline)
	}
}

// codeFigure wraps a pre block into a labeled figure. The pre node is
// detached from its parent and re-homed.
func codeFigure(pre *html.Node, lang string) *html.Node {
	figure := &html.Node{
		Type: html.ElementNode,
		Data: "figure",
		Attr: []html.Attribute{
			{Key: "class", Val: "code-block"},
			{Key: "data-language", Val: lang},
		},
	}

	caption := &html.Node{Type: html.ElementNode, Data: "figcaption"}
	label := &html.Node{
		Type: html.ElementNode,
		Data: "span",
		Attr: []html.Attribute{{Key: "class", Val: "code-language"}},
	}
	label.AppendChild(&html.Node{Type: html.TextNode, Data: lang})
	button := &html.Node{
		Type: html.ElementNode,
		Data: "button",
		Attr: []html.Attribute{
			{Key: "type", Val: "button"},
			{Key: "class", Val: "code-copy"},
			{Key: "data-action", Val: "copy"},
		},
	}
	button.AppendChild(&html.Node{Type: html.TextNode, Data: "Copy"})
	caption.AppendChild(label)
	caption.AppendChild(button)
	figure.AppendChild(caption)

	if pre.Parent != nil {
		pre.Parent.RemoveChild(pre)
	}
	figure.AppendChild(pre)
	return figure
}

// placeholderNode is the degradation target for unresolved images.
func placeholderNode() *html.Node {
	span := &html.Node{
		Type: html.ElementNode,
		Data: "span",
		Attr: []html.Attribute{{Key: "class", Val: "image-unresolved"}},
	}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: "[image unavailable]"})
	return span
}

// =============================================================================
// Node Helpers
// =============================================================================

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return body
}

func renderChildren(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if err := html.Render(&buf, child); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func firstElementChild(n *html.Node) *html.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode {
			return child
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

// languageOf extracts the fence language from a code element's
// "language-*" class, if any.
func languageOf(code *html.Node) string {
	for _, class := range strings.Fields(getAttr(code, "class")) {
		if lang, ok := strings.CutPrefix(class, "language-"); ok {
			return lang
		}
	}
	return ""
}

func replaceNode(old, replacement *html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	parent.InsertBefore(replacement, old)
	parent.RemoveChild(old)
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, attr := range n.Attr {
		if attr.Key != key {
			kept = append(kept, attr)
		}
	}
	n.Attr = kept
}
