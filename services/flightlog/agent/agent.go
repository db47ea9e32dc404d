// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the Agent Controller (C9): the per-turn state
// machine that ties the Safety Gate, Doc Index, Tool Runtime, LLM Gateway,
// and Query Validator into a single disciplined answer pipeline.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianFOSS/pkg/logging"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/apierr"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/docs"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/safety"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/session"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/tools"
	"github.com/AleutianAI/AleutianFOSS/services/flightlog/validator"
	"github.com/AleutianAI/AleutianFOSS/services/llm"
)

const (
	// Kq is the query-discrepancy correction budget (§4.9, fixed at 1).
	Kq = 1
	// ToolHopBound is the maximum number of tool-call rounds per turn
	// (§4.9, default 4).
	ToolHopBound = 4
	// DefaultAnswerCorrectionBudget is Ka, the answer-shape correction
	// budget (§4.9, default within [2,3]).
	DefaultAnswerCorrectionBudget = 3

	defaultPerCallTimeout  = 30 * time.Second
	defaultPerTurnDeadline = 90 * time.Second
	defaultTopKDocs        = 3
)

// errToolHopBoundExceeded signals that runLLMLoop aborted a turn because it
// exceeded ToolHopBound tool-call rounds (§4.9 "Tool-hop bound"). It is
// handled specially by HandleTurn, which still emits a diagnostic answer
// rather than failing the turn outright.
var errToolHopBoundExceeded = errors.New("tool-hop bound exceeded")

// Outcome is the result of one HandleTurn call, carrying everything the
// HTTP layer renders into a `/chatbot/chat` response (§6).
type Outcome struct {
	Text            string
	Thinking        string
	RelevantDocs    []docs.SearchResult
	AvailableTables []string
	QueryValidation *validator.Report
	AnswerShape     safety.AnswerShape
	Refused         bool
	BestEffort      bool
	ToolHops        int
	Corrections     int
}

// Controller is the process-wide Agent Controller, parameterized over a
// Gateway, Safety Gate, and Doc Index (§9 singletons consumed as narrow
// injected capabilities).
type Controller struct {
	gateway  llm.Gateway
	gate     *safety.Gate
	docIndex *docs.Index
	logger   *logging.Logger

	perTurnDeadline        time.Duration
	answerCorrectionBudget int
	topKDocs               int
}

// Option configures a Controller.
type Option func(*Controller)

// WithPerTurnDeadline overrides the default per-turn deadline.
func WithPerTurnDeadline(d time.Duration) Option {
	return func(c *Controller) { c.perTurnDeadline = d }
}

// WithAnswerCorrectionBudget overrides Ka; values outside [2,3] are clamped.
func WithAnswerCorrectionBudget(ka int) Option {
	return func(c *Controller) {
		if ka < 2 {
			ka = 2
		}
		if ka > 3 {
			ka = 3
		}
		c.answerCorrectionBudget = ka
	}
}

// New constructs a Controller.
func New(gateway llm.Gateway, gate *safety.Gate, docIndex *docs.Index, logger *logging.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Controller{
		gateway:                gateway,
		gate:                   gate,
		docIndex:               docIndex,
		logger:                 logger,
		perTurnDeadline:        defaultPerTurnDeadline,
		answerCorrectionBudget: DefaultAnswerCorrectionBudget,
		topKDocs:               defaultTopKDocs,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleTurn runs one full turn of the state machine described in §4.9:
// START -> INJECT_CHECK -> BUILD_PROMPT -> LLM_CALL <-> RUN_TOOLS ->
// VALIDATE_QUERIES -> (CORRECTION_PROMPT -> LLM_CALL)* -> CLASSIFY_ANSWER ->
// (CORRECTION_PROMPT -> LLM_CALL)* -> EMIT | EMIT_BEST_EFFORT | REFUSE.
func (c *Controller) HandleTurn(ctx context.Context, sess *session.Session, userMessage string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.perTurnDeadline)
	defer cancel()

	// INJECT_CHECK
	injection, err := c.gate.ClassifyInjection(ctx, userMessage)
	if err != nil && injection == nil {
		return nil, apierr.Transport("injection classifier unavailable", err)
	}
	if injection.Suspicious {
		c.logger.Warn("turn refused by safety gate", "session_id", sess.ID, "risk", injection.Risk)
		// §7 SafetyRefusal: terminal, 200-status, no history append of the
		// refused user message (to avoid injection persistence).
		return &Outcome{Text: safety.RefusalText, Refused: true}, nil
	}

	// BUILD_PROMPT
	relevantDocs, err := c.docIndex.Search(ctx, userMessage, c.topKDocs)
	if err != nil {
		c.logger.Warn("doc search failed, continuing without relevant docs", "session_id", sess.ID, "error", err)
		relevantDocs = nil
	}
	toolRuntime := tools.New(sess)
	messages := buildPrompt(sess, userMessage, relevantDocs)

	// LLM_CALL <-> RUN_TOOLS
	toolHops := 0
	assistantText, messages, err := c.runLLMLoop(ctx, messages, toolRuntime, &toolHops)
	if errors.Is(err, errToolHopBoundExceeded) {
		assistantText = toolHopDiagnosticAnswer
		return c.finalize(sess, userMessage, assistantText, relevantDocs, nil, true, toolHops, 0)
	}
	if err != nil {
		return nil, err
	}

	// VALIDATE_QUERIES and CLASSIFY_ANSWER, each with its own bounded
	// correction loop, sharing the cumulative tool-hop counter.
	attemptsQ, attemptsA := 0, 0
	var report *validator.Report
	var answerVerdict *safety.AnswerVerdict
	bestEffort := false

	for {
		report = validator.Validate(ctx, sess.Store(), assistantText)

		if report.QueriesWithDiscrepancies > 0 && attemptsQ < Kq {
			attemptsQ++
			messages = appendCorrectionTurn(messages, assistantText, queryCorrectionPrompt(assistantText, report))
			assistantText, messages, err = c.runLLMLoop(ctx, messages, toolRuntime, &toolHops)
			if errors.Is(err, errToolHopBoundExceeded) {
				return c.finalize(sess, userMessage, toolHopDiagnosticAnswer, relevantDocs, report, true, toolHops, attemptsQ+attemptsA)
			}
			if err != nil {
				return nil, err
			}
			continue
		}

		answerVerdict, err = c.gate.ClassifyAnswer(ctx, assistantText)
		if err != nil {
			return nil, apierr.Transport("answer classifier unavailable", err)
		}
		if answerVerdict.IsValid {
			break
		}
		if attemptsA >= c.answerCorrectionBudget {
			bestEffort = true
			break
		}
		attemptsA++
		messages = appendCorrectionTurn(messages, assistantText, answerCorrectionPrompt(assistantText, answerVerdict))
		assistantText, messages, err = c.runLLMLoop(ctx, messages, toolRuntime, &toolHops)
		if errors.Is(err, errToolHopBoundExceeded) {
			return c.finalize(sess, userMessage, toolHopDiagnosticAnswer, relevantDocs, report, true, toolHops, attemptsQ+attemptsA)
		}
		if err != nil {
			return nil, err
		}
	}

	outcome, finalizeErr := c.finalize(sess, userMessage, assistantText, relevantDocs, report, bestEffort, toolHops, attemptsQ+attemptsA)
	if finalizeErr != nil {
		return nil, finalizeErr
	}
	if answerVerdict != nil {
		outcome.AnswerShape = answerVerdict.Shape
	}
	return outcome, nil
}

// finalize appends the turn to history exactly once and builds the Outcome
// (§4.9 "appended to history only once — the corrected text replaces the
// original").
func (c *Controller) finalize(sess *session.Session, userMessage, assistantText string, relevantDocs []docs.SearchResult, report *validator.Report, bestEffort bool, toolHops, corrections int) (*Outcome, error) {
	now := time.Now()
	sess.AppendTurn(userMessage, assistantText, now)
	sess.RecordValidation(report, now)
	return &Outcome{
		Text:            assistantText,
		Thinking:        fmt.Sprintf("%d tool call round(s), %d correction round(s)", toolHops, corrections),
		RelevantDocs:    relevantDocs,
		AvailableTables: sess.TablesAvailable(),
		QueryValidation: report,
		BestEffort:      bestEffort,
		ToolHops:        toolHops,
		Corrections:     corrections,
	}, nil
}

// runLLMLoop drives LLM_CALL <-> RUN_TOOLS until the model returns text,
// enforcing the cumulative tool-hop bound across the whole turn and the
// §8 "zero text and zero tool calls" retry-once rule.
func (c *Controller) runLLMLoop(ctx context.Context, messages []llm.Message, toolRuntime *tools.Runtime, toolHops *int) (string, []llm.Message, error) {
	retriedEmpty := false
	for {
		result, err := c.gateway.Chat(ctx, messages, tools.Definitions(), llm.ToolChoiceAuto)
		if err != nil {
			return "", messages, err
		}

		if result.HasToolCalls() {
			if *toolHops >= ToolHopBound {
				return "", messages, errToolHopBoundExceeded
			}
			*toolHops++
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, ToolCalls: result.ToolCalls})
			for _, tc := range result.ToolCalls {
				body := toolRuntime.Dispatch(ctx, tc)
				messages = append(messages, llm.Message{Role: llm.RoleTool, Content: body, ToolCallID: tc.ID})
			}
			retriedEmpty = false
			continue
		}

		if result.Text == "" {
			if retriedEmpty {
				return "", messages, apierr.Transport("LLM returned no text and no tool calls twice in a row", nil)
			}
			retriedEmpty = true
			continue
		}
		return result.Text, messages, nil
	}
}

const toolHopDiagnosticAnswer = "I wasn't able to finish answering this within the allowed number of tool calls. Try narrowing the question or asking about one table at a time."
