// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docs

import "github.com/tmc/langchaingo/textsplitter"

// DefaultChunkBudget is the default character budget per chunk (§4.3: "~1000").
const DefaultChunkBudget = 1000

// docSeparators orders split points from largest structural unit to
// smallest: markdown headings, blank-line-delimited paragraphs/tables,
// single newlines, then whitespace. A fenced code block has no heading or
// blank line inside it, so the splitter keeps it whole unless it alone
// exceeds budget.
var docSeparators = []string{
	"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
	"\n\n", "\n", " ", "",
}

// chunkDocument splits content into chunks bounded by budget characters,
// preferring to break on heading and paragraph boundaries before falling
// back to lines or words, so a heading, paragraph, code block, or table is
// only split mid-item when it alone exceeds budget (§4.3).
func chunkDocument(content string, budget int) []string {
	if budget <= 0 {
		budget = DefaultChunkBudget
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(budget),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(docSeparators),
	)
	chunks, err := splitter.SplitText(content)
	if err != nil {
		return nil
	}
	return chunks
}
