// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"testing"
	"time"

	"github.com/AleutianAI/AleutianFOSS/services/flightlog/docs"
)

func TestNewDocsStatusResponseConverts(t *testing.T) {
	now := time.Unix(5000, 0)
	resp := NewDocsStatusResponse(docs.Status{
		SourceCount:  2,
		ChunkCount:   10,
		UsedFallback: true,
		LastRefresh:  now,
	})
	if resp.SourceCount != 2 || resp.ChunkCount != 10 || !resp.UsedFallback || resp.LastRefresh != now {
		t.Errorf("unexpected conversion: %+v", resp)
	}
}
