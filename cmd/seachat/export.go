// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"html"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/SeaChat/pkg/render"
	"github.com/AleutianAI/SeaChat/pkg/session"
)

const transcriptHeader = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>SeaChat transcript</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #0f1923; }
.turn { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 0.5rem; }
.turn.user { background: #e8f7f6; border-left: 3px solid #20b9b4; }
.turn.assistant { background: #f6f8f9; border-left: 3px solid #2c4a54; }
.references { font-size: 0.875rem; color: #2c4a54; }
.chat-image { max-width: 100%; }
figure.code-block { margin: 0.5rem 0; }
figure.code-block pre { background: #0d2f39; color: #e8f7f6; padding: 0.75rem; overflow-x: auto; }
.image-unresolved { color: #2c4a54; font-style: italic; }
</style>
</head>
<body>
<h1>SeaChat transcript</h1>
`

// exportTranscript renders the committed conversation through the full
// pipeline and writes it as a standalone HTML document.
//
// User text is escaped verbatim; assistant messages go through the
// sanitizing render pipeline, so the exported file carries only
// allowlisted markup.
func exportTranscript(path string, messages []session.Message, pipeline *render.Pipeline) error {
	var sb strings.Builder
	sb.WriteString(transcriptHeader)
	sb.WriteString("<p class=\"references\">exported " + time.Now().Format(time.RFC1123) + "</p>\n")

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			sb.WriteString(`<section class="turn user"><p>`)
			sb.WriteString(html.EscapeString(msg.Content))
			sb.WriteString("</p></section>\n")
		case session.RoleAssistant:
			out, err := pipeline.Render(render.RenderInput{
				Text:       msg.Content,
				References: msg.References,
			})
			if err != nil {
				return fmt.Errorf("render message %s: %w", msg.Id, err)
			}
			sb.WriteString(`<section class="turn assistant">`)
			sb.WriteString(out.HTML)
			writeReferenceList(&sb, out.Cards)
			sb.WriteString("</section>\n")
		}
	}

	sb.WriteString("</body>\n</html>\n")
	return os.WriteFile(path, []byte(sb.String()), 0644)
}

func writeReferenceList(sb *strings.Builder, cards []render.ReferenceCard) {
	if len(cards) == 0 {
		return
	}
	sb.WriteString(`<ul class="references">`)
	for _, card := range cards {
		sb.WriteString("<li>[")
		sb.WriteString(fmt.Sprint(card.Index))
		sb.WriteString("] ")
		sb.WriteString(html.EscapeString(card.SourceName))
		if card.PageLabel != "" {
			sb.WriteString(" (" + html.EscapeString(card.PageLabel) + ")")
		}
		if card.Snippet != "" {
			sb.WriteString(": ")
			sb.WriteString(html.EscapeString(card.Snippet))
		}
		sb.WriteString("</li>")
	}
	sb.WriteString("</ul>\n")
}
