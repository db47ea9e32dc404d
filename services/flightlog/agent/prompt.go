// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianFOSS/services/flightlog/docs"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/safety"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/validator"
	"github.com/AleutianAI/AleutianFOSS/services/llm"
)

// systemPrompt enforces §4.9's four prompt-composition rules: clarification
// as a first-class outcome, tool-first discipline, honesty about missing
// fields, and a deterministic output shape.
const systemPrompt = `You are a flight-log analysis assistant. You can query ingested flight telemetry tables through tools.

Rules:
1. Asking a clarifying question is a valid, first-class way to conclude a turn when the request is ambiguous. Do not guess at intent.
2. Before querying a field you are not certain exists, call getDataSchema (or getMessageTypes) to confirm it. Do not invent field or table names.
3. If a field the user asks about does not appear in the schema, say plainly that the data is not available. Never guess at units or values.
4. End your reply in exactly one of these two shapes, with no other top-level structure:
   ANSWER: <your answer> / DATA SOURCE: <table(s) and fields used>
   CLARIFICATION: <your question> / REASON: <why you need it>`

// buildPrompt assembles the message sequence for the first LLM_CALL of a
// turn: system rules, relevant documentation, available tables, retained
// history, then the new user message (§4.9 BUILD_PROMPT).
func buildPrompt(sess *session.Session, userMessage string, relevantDocs []docs.SearchResult) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}

	if context := renderContext(sess, relevantDocs); context != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: context})
	}

	for _, turn := range sess.History() {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Text})
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages
}

func renderContext(sess *session.Session, relevantDocs []docs.SearchResult) string {
	var b strings.Builder

	tables := sess.TablesAvailable()
	if len(tables) > 0 {
		fmt.Fprintf(&b, "Available tables for this session: %s\n", strings.Join(tables, ", "))
	}

	if len(relevantDocs) > 0 {
		b.WriteString("Relevant documentation:\n")
		for _, d := range relevantDocs {
			fmt.Fprintf(&b, "- (%s, score=%.3f) %s\n", d.URL, d.Score, truncate(d.Content, 400))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// appendCorrectionTurn records the assistant's prior attempt and the
// correction prompt as the next two messages, per §4.9 "Correction prompts
// quote the original assistant text".
func appendCorrectionTurn(messages []llm.Message, priorAssistantText, correction string) []llm.Message {
	return append(messages,
		llm.Message{Role: llm.RoleAssistant, Content: priorAssistantText},
		llm.Message{Role: llm.RoleUser, Content: correction},
	)
}

// queryCorrectionPrompt builds the correction prompt for a numeric
// discrepancy (§4.9: quotes the original text, the validator verdict, the
// corrective guidance, and reasserts tool availability).
func queryCorrectionPrompt(original string, report *validator.Report) string {
	var b strings.Builder
	b.WriteString("Your previous answer contained a numeric discrepancy versus the actual query result:\n\n")
	fmt.Fprintf(&b, "Original answer: %q\n\n", original)
	for _, v := range report.Validations {
		for _, d := range v.Discrepancies {
			fmt.Fprintf(&b, "Query %q: you stated %v but column %q actually contains %v.\n", v.ExtractedSQL, d.ClaimedValue, d.Column, d.ActualValue)
		}
	}
	b.WriteString("\nRe-run the query if needed (tools are still available) and restate your answer with the correct numbers, in the required output shape.")
	return b.String()
}

// answerCorrectionPrompt builds the correction prompt for an invalid answer
// shape (REASONING or VAGUE) classified by the Safety Gate's post-call
// classifier (§4.9).
func answerCorrectionPrompt(original string, verdict *safety.AnswerVerdict) string {
	var b strings.Builder
	b.WriteString("Your previous reply did not conclude with a usable answer or clarification:\n\n")
	fmt.Fprintf(&b, "Original answer: %q\n", original)
	fmt.Fprintf(&b, "Classified as: %s (%s)\n", verdict.Shape, verdict.Reason)
	if verdict.Suggestion != "" {
		fmt.Fprintf(&b, "Suggestion: %s\n", verdict.Suggestion)
	}
	b.WriteString("\nTools are still available. Conclude with exactly one of the two required shapes: ANSWER: ... / DATA SOURCE: ... or CLARIFICATION: ... / REASON: ...")
	return b.String()
}
