// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/orchestrator"
)

func main() {
	cfg := orchestrator.ConfigFromEnv()

	var exporter logging.LogExporter
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0750); err == nil {
			auditPath := filepath.Join(cfg.CacheDir, "session_audit.log")
			if f, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640); err == nil {
				exporter = logging.NewSessionAuditExporter(f)
			}
		}
	}

	logger := logging.New(logging.Config{
		Level:    logging.LevelInfo,
		Service:  "orchestrator",
		JSON:     true,
		Exporter: exporter,
	})
	defer logger.Close()

	svc, err := orchestrator.New(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize orchestrator: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("orchestrator server exited: %v", err)
	}
}
