// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/SeaChat/pkg/session"
)

// snippetBudget caps the snippet shown on a card; longer snippets are
// truncated with an ellipsis marker.
const snippetBudget = 160

// ImageLister lists the extracted image paths for one page of a file.
// backend.Client satisfies it.
type ImageLister interface {
	PageImages(ctx context.Context, fileID string, page int) ([]string, error)
}

// NavigateFunc receives card navigation: jump to a page of a file.
type NavigateFunc func(page int, fileID string)

// PreviewFunc receives an image address for the preview affordance.
type PreviewFunc func(url string)

// =============================================================================
// Reference Cards
// =============================================================================

// ReferenceCard is one rendered citation in display-index order.
type ReferenceCard struct {
	Index      int
	CitationID string
	FileID     string
	SourceName string
	Page       int
	PageLabel  string
	Snippet    string
	Score      float64
	PreviewURL string

	// Images are the secondary page image addresses. Empty until
	// LoadImages runs; empty after it too when the page has no figures
	// or the fetch failed.
	Images       []string
	imagesLoaded bool
}

// buildCards maps references to cards, preserving display order.
// Snippets are truncated here; images stay lazy.
func (p *Pipeline) buildCards(refs []session.Reference) []ReferenceCard {
	if len(refs) == 0 {
		return nil
	}
	cards := make([]ReferenceCard, 0, len(refs))
	for _, ref := range refs {
		cards = append(cards, ReferenceCard{
			Index:      ref.Index,
			CitationID: ref.CitationID,
			FileID:     ref.FileID,
			SourceName: ref.SourceName,
			Page:       ref.Page,
			PageLabel:  pageLabel(ref.Page),
			Snippet:    truncateSnippet(ref.Snippet),
			Score:      ref.Score,
			PreviewURL: ref.PreviewURL,
		})
	}
	return cards
}

// LoadImages fetches the card's secondary page images on first use.
//
// Failure is non-fatal: the card keeps zero images and the miss is
// logged. Cards without a known file never fetch.
func (p *Pipeline) LoadImages(ctx context.Context, card *ReferenceCard) {
	if card.imagesLoaded {
		return
	}
	card.imagesLoaded = true

	if card.FileID == "" || p.images == nil {
		return
	}

	paths, err := p.images.PageImages(ctx, card.FileID, card.Page)
	if err != nil {
		p.log.Warn("page image fetch failed",
			"file_id", card.FileID,
			"page", card.Page,
			"error", err,
		)
		return
	}

	for _, imagePath := range paths {
		card.Images = append(card.Images, p.resolver.AssetURL(card.FileID, imagePath))
	}
}

// Activate handles a card click. Navigation fires only for a positive
// page number; a card without one is inert and reports false.
func (c *ReferenceCard) Activate(onNavigate NavigateFunc) bool {
	if c.Page <= 0 || onNavigate == nil {
		return false
	}
	onNavigate(c.Page, c.FileID)
	return true
}

// PreviewThumbnail routes a thumbnail click to the shared preview
// affordance. Independent of navigation.
func (c *ReferenceCard) PreviewThumbnail(i int, onPreview PreviewFunc) bool {
	if i < 0 || i >= len(c.Images) {
		return false
	}
	return PreviewImage(c.Images[i], onPreview)
}

// PreviewImage is the single image-preview affordance; inline image
// clicks and card thumbnail clicks both route through it.
func PreviewImage(url string, onPreview PreviewFunc) bool {
	if url == "" || onPreview == nil {
		return false
	}
	onPreview(url)
	return true
}

// pageLabel formats the human page label; page 0 means unknown.
func pageLabel(page int) string {
	if page <= 0 {
		return ""
	}
	return fmt.Sprintf("p. %d", page)
}

// truncateSnippet enforces the snippet character budget, rune safe.
func truncateSnippet(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= snippetBudget {
		return s
	}
	return strings.TrimSpace(string(runes[:snippetBudget])) + "…"
}
