// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SeaChat/pkg/resolve"
	"github.com/AleutianAI/SeaChat/pkg/session"
)

// fakeLister scripts PageImages responses.
type fakeLister struct {
	images []string
	err    error
	calls  int
}

func (f *fakeLister) PageImages(_ context.Context, fileID string, page int) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.images, nil
}

func pipelineWithLister(lister ImageLister) *Pipeline {
	return New(Config{
		Resolver: resolve.New(backendBase),
		Images:   lister,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// =============================================================================
// Card Construction
// =============================================================================

func TestRender_CardsFollowDisplayOrder(t *testing.T) {
	refs := []session.Reference{
		{Index: 1, CitationID: "c1", Page: 3, FileID: "f1", SourceName: "manual.pdf", Snippet: "Connect the cable."},
		{Index: 2, CitationID: "c2", Page: 7, FileID: "f1", Snippet: "Then power on."},
	}

	out := render(t, RenderInput{Text: "ok", References: refs})

	require.Len(t, out.Cards, 2)
	assert.Equal(t, 1, out.Cards[0].Index)
	assert.Equal(t, "c1", out.Cards[0].CitationID)
	assert.Equal(t, "manual.pdf", out.Cards[0].SourceName)
	assert.Equal(t, "p. 3", out.Cards[0].PageLabel)
	assert.Equal(t, 2, out.Cards[1].Index)
	assert.Equal(t, "p. 7", out.Cards[1].PageLabel)
}

func TestRender_NoReferencesNoCards(t *testing.T) {
	out := render(t, RenderInput{Text: "ok"})
	assert.Empty(t, out.Cards)
}

func TestCards_SnippetTruncation(t *testing.T) {
	long := strings.Repeat("a", snippetBudget+40)
	refs := []session.Reference{{Index: 1, CitationID: "c1", Snippet: long}}

	out := render(t, RenderInput{Text: "ok", References: refs})

	require.Len(t, out.Cards, 1)
	snippet := out.Cards[0].Snippet
	assert.True(t, strings.HasSuffix(snippet, "…"), "truncated snippet ends with ellipsis")
	assert.LessOrEqual(t, len([]rune(snippet)), snippetBudget+1)
}

func TestCards_ShortSnippetUntouched(t *testing.T) {
	refs := []session.Reference{{Index: 1, CitationID: "c1", Snippet: "short"}}
	out := render(t, RenderInput{Text: "ok", References: refs})
	assert.Equal(t, "short", out.Cards[0].Snippet)
}

func TestCards_PageZeroHasNoLabel(t *testing.T) {
	refs := []session.Reference{{Index: 1, CitationID: "c1", Page: 0}}
	out := render(t, RenderInput{Text: "ok", References: refs})
	assert.Empty(t, out.Cards[0].PageLabel)
}

// =============================================================================
// Lazy Images
// =============================================================================

func TestLoadImages_ResolvesAssetAddresses(t *testing.T) {
	lister := &fakeLister{images: []string{"page3_img1.png", "page3_img2.png"}}
	p := pipelineWithLister(lister)

	card := ReferenceCard{Index: 1, FileID: "f1", Page: 3}
	p.LoadImages(context.Background(), &card)

	require.Len(t, card.Images, 2)
	assert.Equal(t, backendBase+"/api/v1/pdf/images?fileId=f1&imagePath=page3_img1.png", card.Images[0])
}

func TestLoadImages_FailureIsNonFatal(t *testing.T) {
	lister := &fakeLister{err: errors.New("backend down")}
	p := pipelineWithLister(lister)

	card := ReferenceCard{Index: 1, FileID: "f1", Page: 3}
	p.LoadImages(context.Background(), &card)

	assert.Empty(t, card.Images, "card renders with zero images on fetch failure")
}

func TestLoadImages_SkipsUnknownFile(t *testing.T) {
	lister := &fakeLister{images: []string{"page3_img1.png"}}
	p := pipelineWithLister(lister)

	card := ReferenceCard{Index: 1, FileID: "", Page: 3}
	p.LoadImages(context.Background(), &card)

	assert.Empty(t, card.Images)
	assert.Zero(t, lister.calls, "no fetch without a file id")
}

func TestLoadImages_FetchesOnce(t *testing.T) {
	lister := &fakeLister{images: []string{"page3_img1.png"}}
	p := pipelineWithLister(lister)

	card := ReferenceCard{Index: 1, FileID: "f1", Page: 3}
	p.LoadImages(context.Background(), &card)
	p.LoadImages(context.Background(), &card)

	assert.Equal(t, 1, lister.calls)
	assert.Len(t, card.Images, 1)
}

// =============================================================================
// Activation
// =============================================================================

func TestCard_ActivateNavigatesWithPage(t *testing.T) {
	card := ReferenceCard{Index: 1, FileID: "f1", Page: 3}

	var gotPage int
	var gotFile string
	ok := card.Activate(func(page int, fileID string) {
		gotPage, gotFile = page, fileID
	})

	assert.True(t, ok)
	assert.Equal(t, 3, gotPage)
	assert.Equal(t, "f1", gotFile)
}

func TestCard_ActivateWithoutPageIsInert(t *testing.T) {
	card := ReferenceCard{Index: 1, FileID: "f1", Page: 0}

	called := false
	ok := card.Activate(func(int, string) { called = true })

	assert.False(t, ok)
	assert.False(t, called, "page 0 never navigates")
}

func TestCard_PreviewThumbnail(t *testing.T) {
	card := ReferenceCard{
		Images: []string{backendBase + "/api/v1/pdf/images?fileId=f1&imagePath=page3_img1.png"},
	}

	var previewed string
	ok := card.PreviewThumbnail(0, func(url string) { previewed = url })

	assert.True(t, ok)
	assert.Equal(t, card.Images[0], previewed)

	assert.False(t, card.PreviewThumbnail(5, func(string) {}), "out-of-range index is inert")
}

func TestPreviewImage_IndependentOfNavigation(t *testing.T) {
	var previewed string
	ok := PreviewImage("https://example.com/pic.png", func(url string) { previewed = url })

	assert.True(t, ok)
	assert.Equal(t, "https://example.com/pic.png", previewed)
	assert.False(t, PreviewImage("", func(string) {}))
}
