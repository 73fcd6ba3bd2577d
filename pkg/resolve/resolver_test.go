// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"testing"

	"github.com/AleutianAI/SeaChat/pkg/session"
)

const base = "http://localhost:8000"

func refs() []session.Reference {
	return []session.Reference{
		{Index: 1, CitationID: "c1", Page: 22, FileID: "f1"},
		{Index: 2, CitationID: "c2", Page: 5, FileID: "f2"},
	}
}

func TestResolver_PassThrough(t *testing.T) {
	r := New(base)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"https absolute", "https://example.com/pic.png", "https://example.com/pic.png"},
		{"http absolute", "http://example.com/pic.png", "http://example.com/pic.png"},
		{"data uri", "data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
		{"blob uri", "blob:abc-123", "blob:abc-123"},
		{
			"backend asset path rebased",
			"/api/v1/pdf/images?fileId=f1&imagePath=page3_img1.png",
			base + "/api/v1/pdf/images?fileId=f1&imagePath=page3_img1.png",
		},
		{
			"backend page path rebased",
			"/api/v1/pdf/page?fileId=f1&page=3&type=original",
			base + "/api/v1/pdf/page?fileId=f1&page=3&type=original",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.path, refs(), "")
			if !got.Resolved {
				t.Fatalf("Resolve(%q) unresolved", tt.path)
			}
			if got.URL != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got.URL, tt.want)
			}
		})
	}
}

func TestResolver_PageMatch(t *testing.T) {
	r := New(base)

	// page22 matches the reference with page 22, so the address is
	// built from f1.
	got := r.Resolve("page22_img1.png", refs(), "")
	if !got.Resolved {
		t.Fatal("expected resolution via page match")
	}
	want := base + "/api/v1/pdf/images?fileId=f1&imagePath=page22_img1.png"
	if got.URL != want {
		t.Errorf("URL = %q, want %q", got.URL, want)
	}
}

func TestResolver_PageMatchSecondReference(t *testing.T) {
	r := New(base)

	got := r.Resolve("page5_img2.png", refs(), "")
	want := base + "/api/v1/pdf/images?fileId=f2&imagePath=page5_img2.png"
	if !got.Resolved || got.URL != want {
		t.Errorf("Resolve = %+v, want %q", got, want)
	}
}

func TestResolver_UnmatchedPageMarkerNeverBorrowsFileID(t *testing.T) {
	r := New(base)

	// No reference has page 99. The marker is authoritative: the
	// filename must not borrow f1's fileId just because f1 is first.
	got := r.Resolve("page99_img1.png", refs(), "")
	if got.Resolved {
		t.Errorf("Resolve = %+v, want unresolved", got)
	}

	// With a fallback scope the same miss resolves against it.
	got = r.Resolve("page99_img1.png", refs(), "f2")
	want := base + "/api/v1/pdf/images?fileId=f2&imagePath=page99_img1.png"
	if !got.Resolved || got.URL != want {
		t.Errorf("Resolve = %+v, want %q", got, want)
	}
}

func TestResolver_SkipsReferencesWithoutFileID(t *testing.T) {
	r := New(base)
	refs := []session.Reference{
		{Index: 1, CitationID: "c1", Page: 7, FileID: ""},
		{Index: 2, CitationID: "c2", Page: 7, FileID: "f9"},
	}

	// The first page-7 reference has no fileId and must be skipped in
	// favor of the next reference with the same page.
	got := r.Resolve("page7_img1.png", refs, "")
	want := base + "/api/v1/pdf/images?fileId=f9&imagePath=page7_img1.png"
	if !got.Resolved || got.URL != want {
		t.Errorf("Resolve = %+v, want %q", got, want)
	}
}

func TestResolver_FallbackFileID(t *testing.T) {
	r := New(base)

	got := r.Resolve("page99_img1.png", nil, "f2")
	want := base + "/api/v1/pdf/images?fileId=f2&imagePath=page99_img1.png"
	if !got.Resolved || got.URL != want {
		t.Errorf("Resolve = %+v, want %q", got, want)
	}
}

func TestResolver_Unresolved(t *testing.T) {
	r := New(base)

	tests := []struct {
		name     string
		path     string
		refs     []session.Reference
		fallback string
	}{
		{"no references, no fallback", "page99_img1.png", nil, ""},
		{"references without fileIds", "page3_img1.png", []session.Reference{{Page: 3}}, ""},
		{"empty path", "", refs(), "f1"},
		{"whitespace path", "   ", refs(), "f1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.path, tt.refs, tt.fallback); got.Resolved {
				t.Errorf("Resolve(%q) = %+v, want unresolved", tt.path, got)
			}
		})
	}
}

func TestResolver_NoPageMarkerUsesFirstFileID(t *testing.T) {
	r := New(base)

	got := r.Resolve("diagram.png", refs(), "")
	want := base + "/api/v1/pdf/images?fileId=f1&imagePath=diagram.png"
	if !got.Resolved || got.URL != want {
		t.Errorf("Resolve = %+v, want %q", got, want)
	}
}

func TestResolver_StripsDirectoryComponents(t *testing.T) {
	r := New(base)

	got := r.Resolve("images/page22_img1.png", refs(), "")
	want := base + "/api/v1/pdf/images?fileId=f1&imagePath=page22_img1.png"
	if !got.Resolved || got.URL != want {
		t.Errorf("Resolve = %+v, want %q", got, want)
	}
}

func TestResolver_EscapesQueryValues(t *testing.T) {
	r := New(base)

	got := r.AssetURL("file id", "a b.png")
	want := base + "/api/v1/pdf/images?fileId=file+id&imagePath=a+b.png"
	if got != want {
		t.Errorf("AssetURL = %q, want %q", got, want)
	}
}

func TestResolver_PageURL(t *testing.T) {
	r := New(base + "/")

	got := r.PageURL("f1", 3)
	want := base + "/api/v1/pdf/page?fileId=f1&page=3&type=original"
	if got != want {
		t.Errorf("PageURL = %q, want %q", got, want)
	}
}

func TestResolver_Deterministic(t *testing.T) {
	r := New(base)
	first := r.Resolve("page22_img1.png", refs(), "f2")
	for i := 0; i < 10; i++ {
		if got := r.Resolve("page22_img1.png", refs(), "f2"); got != first {
			t.Fatalf("resolution not deterministic: %+v vs %+v", got, first)
		}
	}
}
