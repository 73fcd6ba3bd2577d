// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolve turns symbolic image and citation paths into
// fetchable asset addresses.
//
// The server's answers embed image references in three shapes: already
// absolute addresses, backend-relative asset paths, and bare filenames
// that encode a page number (extracted images are named
// "page{N}_img{M}.png"). Resolution matches the encoded page against
// the turn's references through an ordered fallback chain and builds
// the canonical asset address from (fileId, filename).
//
// Resolution is deterministic and side-effect-free: no network access,
// no logging, so it is independently testable. A miss is a first-class
// result, never an error.
package resolve

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/SeaChat/pkg/session"
)

// backendAssetPrefix marks server-relative paths that are already
// addressable and only need rebasing onto the backend origin.
const backendAssetPrefix = "/api/v1/"

// pageMarkerPattern extracts the page number encoded in an extracted
// image filename, e.g. "page22_img1.png" -> 22.
var pageMarkerPattern = regexp.MustCompile(`(?i)page(\d+)`)

// =============================================================================
// Result
// =============================================================================

// Result is the tagged outcome of one resolution.
//
// Check Resolved before using URL; an unresolved miss degrades to a
// placeholder in the render pipeline, it is never raised as an error.
type Result struct {
	URL      string
	Resolved bool
}

// ResolvedURL tags a successful resolution.
func ResolvedURL(u string) Result {
	return Result{URL: u, Resolved: true}
}

// Unresolved tags a miss.
func Unresolved() Result {
	return Result{}
}

// =============================================================================
// Resolver
// =============================================================================

// Resolver resolves image/citation paths against a backend origin.
// The zero value is unusable; construct with New.
type Resolver struct {
	baseURL string
}

// New creates a resolver for the given backend origin, e.g.
// "http://localhost:8000". A trailing slash is tolerated.
func New(baseURL string) *Resolver {
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve maps a path to a fetchable address.
//
// Already-addressable paths (absolute http/https/data/blob addresses,
// or recognized backend asset paths) pass through, the latter rebased
// onto the backend origin. Anything else is treated as a relative
// filename; the fallback chain is, in order:
//
//  1. when the filename encodes a page, the first reference whose page
//     equals it and that carries a fileId
//  2. when the filename encodes no page, the first reference carrying
//     any fileId
//  3. fallbackFileID, when non-empty
//  4. Unresolved
//
// A filename with a page marker that matches no reference never
// borrows another reference's fileId: the marker is authoritative, so
// resolution skips straight to fallbackFileID.
//
// When a fileId is found, the canonical asset address is built from
// (fileId, filename).
func (r *Resolver) Resolve(p string, refs []session.Reference, fallbackFileID string) Result {
	p = strings.TrimSpace(p)
	if p == "" {
		return Unresolved()
	}

	if isAbsolute(p) {
		return ResolvedURL(p)
	}
	if strings.HasPrefix(p, backendAssetPrefix) {
		return ResolvedURL(r.baseURL + p)
	}

	filename := path.Base(p)
	page, hasPage := pageFromFilename(filename)

	if hasPage {
		for _, ref := range refs {
			if ref.Page == page && ref.FileID != "" {
				return ResolvedURL(r.AssetURL(ref.FileID, filename))
			}
		}
	} else {
		for _, ref := range refs {
			if ref.FileID != "" {
				return ResolvedURL(r.AssetURL(ref.FileID, filename))
			}
		}
	}
	if fallbackFileID != "" {
		return ResolvedURL(r.AssetURL(fallbackFileID, filename))
	}
	return Unresolved()
}

// AssetURL builds the canonical address for an extracted image.
func (r *Resolver) AssetURL(fileID, imagePath string) string {
	return fmt.Sprintf("%s/api/v1/pdf/images?fileId=%s&imagePath=%s",
		r.baseURL, url.QueryEscape(fileID), url.QueryEscape(imagePath))
}

// PageURL builds the address of a rendered page preview.
func (r *Resolver) PageURL(fileID string, page int) string {
	return fmt.Sprintf("%s/api/v1/pdf/page?fileId=%s&page=%d&type=original",
		r.baseURL, url.QueryEscape(fileID), page)
}

// isAbsolute reports whether the path needs no resolution at all.
func isAbsolute(p string) bool {
	for _, prefix := range []string{"http://", "https://", "data:", "blob:"} {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// pageFromFilename extracts the numeric page marker, if any.
func pageFromFilename(filename string) (int, bool) {
	m := pageMarkerPattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, false
	}
	page, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return page, true
}
