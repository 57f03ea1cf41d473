// Package pipeline runs the three-stage drafting pipeline: triage,
// analyst, drafter. The stages run strictly in sequence against the
// same raw email body — a later stage never sees an earlier stage's
// output in its prompt. All three outputs are retained on the Result so
// the caller can display or discard them as it likes.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/replydesk/replydesk/internal/llm"
	"github.com/replydesk/replydesk/internal/tools"
)

// maxToolIterations bounds the drafter's tool loop. A well-behaved
// model needs one or two policy lookups; runaway loops are cut off.
const maxToolIterations = 5

// PipelineError reports a generation service failure (invalid key,
// quota exceeded, network trouble). Previously fetched mail state is
// never touched by a pipeline failure.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Result carries the output of every stage. Only Draft is shown as the
// reply text; Urgency and Entities are retained for display.
type Result struct {
	// Urgency is the triage stage's free-text urgency label.
	Urgency string

	// Entities is the analyst stage's free-text fact list.
	Entities string

	// Draft is the drafter stage's final reply text (markdown).
	Draft string
}

// Orchestrator runs the drafting pipeline against a generation service,
// enforcing a fixed calls-per-minute ceiling.
type Orchestrator struct {
	client  llm.Client
	model   string
	tools   *tools.Registry
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates an orchestrator. requestsPerMinute caps calls to the
// generation service; calls beyond the ceiling wait their turn rather
// than being dropped.
func New(client llm.Client, model string, reg *tools.Registry, requestsPerMinute int, logger *slog.Logger) *Orchestrator {
	if requestsPerMinute < 1 {
		requestsPerMinute = 3
	}
	return &Orchestrator{
		client:  client,
		model:   model,
		tools:   reg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		logger:  logger,
	}
}

// Draft runs triage, analyst, and drafter in order over emailBody and
// returns the combined Result. Any generation failure aborts the
// pipeline with a *PipelineError.
func (o *Orchestrator) Draft(ctx context.Context, emailBody string) (*Result, error) {
	requestID := uuid.NewString()
	logger := o.logger.With("request_id", requestID)
	start := time.Now()

	logger.Info("pipeline started", "model", o.model, "body_len", len(emailBody))

	result := &Result{}

	urgency, err := o.runStage(ctx, logger, stageTriage, emailBody, nil)
	if err != nil {
		return nil, err
	}
	result.Urgency = urgency

	entities, err := o.runStage(ctx, logger, stageAnalyst, emailBody, nil)
	if err != nil {
		return nil, err
	}
	result.Entities = entities

	draft, err := o.runStage(ctx, logger, stageDrafter, emailBody, o.tools)
	if err != nil {
		return nil, err
	}
	result.Draft = draft

	logger.Info("pipeline completed", "duration", time.Since(start).Truncate(time.Millisecond))
	return result, nil
}

// runStage executes one role. Stages without tools are a single
// generation call; the drafter loops while the model keeps requesting
// tool invocations.
func (o *Orchestrator) runStage(ctx context.Context, logger *slog.Logger, stage stageSpec, emailBody string, reg *tools.Registry) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: stage.System},
		{Role: "user", Content: stage.UserPrompt(emailBody)},
	}

	var toolDecls []map[string]any
	if reg != nil {
		toolDecls = reg.List()
	}

	for iteration := 0; ; iteration++ {
		if iteration > maxToolIterations {
			return "", &PipelineError{Stage: stage.Name, Err: fmt.Errorf("tool loop exceeded %d iterations", maxToolIterations)}
		}

		if err := o.limiter.Wait(ctx); err != nil {
			return "", &PipelineError{Stage: stage.Name, Err: fmt.Errorf("rate limit wait: %w", err)}
		}

		resp, err := o.client.Chat(ctx, o.model, messages, toolDecls)
		if err != nil {
			return "", &PipelineError{Stage: stage.Name, Err: err}
		}

		if len(resp.Message.ToolCalls) == 0 || reg == nil {
			logger.Debug("stage completed",
				"stage", stage.Name,
				"iterations", iteration+1,
				"input_tokens", resp.InputTokens,
				"output_tokens", resp.OutputTokens,
			)
			return resp.Message.Content, nil
		}

		// The model asked for tool results before answering. Execute
		// the calls and extend the conversation.
		messages = append(messages, resp.Message)
		for _, tc := range resp.Message.ToolCalls {
			name := tc.Function.Name
			logger.Debug("tool call", "stage", stage.Name, "tool", name, "args", tc.Function.Arguments)

			output, err := reg.Execute(ctx, name, tc.Function.Arguments)
			if err != nil {
				// Tool failures are reported back to the model, which
				// can still finish the draft without the lookup.
				output = fmt.Sprintf("tool error: %v", err)
			}
			messages = append(messages, llm.Message{
				Role:     "tool",
				ToolName: name,
				Content:  output,
			})
		}
	}
}
