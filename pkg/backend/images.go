// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// pageImagesResponse is the GET /api/v1/pdf/page-images body.
type pageImagesResponse struct {
	Images []string `json:"images"`
}

// PageImages lists the extracted image paths for one page of a file.
//
// Reference cards request this lazily when expanded; several cards for
// the same page trigger a single upstream request via singleflight. An
// empty list is a normal outcome for pages without figures.
func (c *Client) PageImages(ctx context.Context, fileID string, page int) ([]string, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileId is required")
	}

	key := fmt.Sprintf("%s:%d", fileID, page)
	v, err, _ := c.imageGroup.Do(key, func() (any, error) {
		return c.fetchPageImages(ctx, fileID, page)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (c *Client) fetchPageImages(ctx context.Context, fileID string, page int) ([]string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/pdf/page-images?fileId=%s&page=%d",
		c.baseURL, url.QueryEscape(fileID), page)

	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer closeBody(c.log, resp.Body)

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed pageImagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode page images response: %w", err)
	}

	c.log.Debug("fetched page images",
		"file_id", fileID,
		"page", page,
		"count", len(parsed.Images),
	)
	return parsed.Images, nil
}
