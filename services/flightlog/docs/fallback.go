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

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed fallback_corpus.yaml
var fallbackCorpusYAML []byte

// fallbackSource is one built-in corpus entry, in source form (before
// chunking/embedding).
type fallbackSource struct {
	URL     string `yaml:"url"`
	Type    string `yaml:"type"`
	Content string `yaml:"content"`
}

// loadFallbackCorpus parses the embedded built-in corpus, used when a
// configured source document cannot be fetched (§4.3).
func loadFallbackCorpus() ([]fallbackSource, error) {
	var sources []fallbackSource
	if err := yaml.Unmarshal(fallbackCorpusYAML, &sources); err != nil {
		return nil, fmt.Errorf("parse built-in corpus: %w", err)
	}
	return sources, nil
}
