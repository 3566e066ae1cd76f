package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"easyform/internal/agents"
	"easyform/internal/log"
	"easyform/internal/metrics"
	"easyform/internal/models"
	"easyform/internal/repositories"
	"easyform/internal/workers"
)

const maxRetrievalOptions = 10

// PipelineInput carries the sanitizable request payload into one pipeline run.
type PipelineInput struct {
	RequestID            string
	UserID               string
	HTML                 string
	VisibleText          string
	ClipboardText        string
	PersonalInstructions string
	Screenshots          [][]byte
	Quality              Quality
}

// FormPipelineService drives one form analysis request through the three
// phases: parse the form into questions, solve each question with retrieved
// context, and turn solutions into browser actions.
type FormPipelineService struct {
	requestRepo repositories.FormRequestRepository
	rag         *RAGService
	parser      *agents.ParserAgent
	solver      *agents.SolutionAgent
	action      *agents.ActionAgent

	smallModel        string
	largeModel        string
	solverConcurrency int
	actionBatchSize   int

	debug  *DebugRunLogger
	logger *slog.Logger
}

// NewFormPipelineService wires the orchestrator.
func NewFormPipelineService(
	requestRepo repositories.FormRequestRepository,
	rag *RAGService,
	parser *agents.ParserAgent,
	solver *agents.SolutionAgent,
	action *agents.ActionAgent,
	smallModel, largeModel string,
	solverConcurrency, actionBatchSize int,
	debug *DebugRunLogger,
) *FormPipelineService {
	return &FormPipelineService{
		requestRepo:       requestRepo,
		rag:               rag,
		parser:            parser,
		solver:            solver,
		action:            action,
		smallModel:        smallModel,
		largeModel:        largeModel,
		solverConcurrency: solverConcurrency,
		actionBatchSize:   actionBatchSize,
		debug:             debug,
		logger:            log.WithModule("form_pipeline"),
	}
}

// Run executes the pipeline for one request. It never returns an error: every
// outcome is reflected in the request status and progress log. ctx carries
// the cancellation signal from the task registry.
func (s *FormPipelineService) Run(ctx context.Context, in PipelineInput) {
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	// Terminal writes must survive the cancellation that ended the run.
	persist := context.WithoutCancel(ctx)

	// A panicking phase must not leave the request stuck in a processing
	// status blocking the user's active-request slot.
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("pipeline panicked", "request_id", in.RequestID, "panic", p)
			s.finishFailed(persist, in.RequestID, "Internal error during processing")
		}
	}()

	modelSet := in.Quality.Models(s.smallModel, s.largeModel)

	html := SanitizeHTML(in.HTML)
	visibleText := SanitizeText(in.VisibleText)
	clipboard := SanitizeText(in.ClipboardText)
	personal := SanitizeText(in.PersonalInstructions)
	s.emit(persist, in.RequestID, models.StageInputsSanitized, "Inputs sanitized", intPtr(5), nil)

	// Phase 1: parse the form into questions.
	questions, totalInputs, ok := s.runParsePhase(ctx, persist, in, modelSet.Parser,
		html, visibleText, clipboard, personal)
	if !ok {
		return
	}
	if s.cancelled(ctx, persist, in.RequestID) {
		return
	}
	if len(questions) == 0 {
		s.emit(persist, in.RequestID, models.StageNoQuestions, "No questions detected", intPtr(100), nil)
		zero := 0
		s.finishCompleted(persist, in.RequestID, &zero)
		return
	}

	// Phase 2: solve every question concurrently.
	solutions, ok := s.runSolvePhase(ctx, persist, in, modelSet.Solver, clipboard, personal, questions)
	if !ok {
		return
	}
	if s.cancelled(ctx, persist, in.RequestID) {
		return
	}

	// Phase 3: generate, post-process and persist actions.
	if !s.runActionPhase(ctx, persist, in, modelSet.Action, questions, solutions) {
		return
	}

	s.finishCompleted(persist, in.RequestID, &totalInputs)
}

// runParsePhase returns the normalized questions and the detected input
// count. ok is false when the request already reached a terminal state.
func (s *FormPipelineService) runParsePhase(ctx, persist context.Context, in PipelineInput, model string,
	html, visibleText, clipboard, personal string) ([]*models.Question, int, bool) {

	s.updateStatus(persist, in.RequestID, models.RequestStatusProcessingStep1, nil, "")
	s.emit(persist, in.RequestID, models.StageParserStarted, "Analyzing form structure", intPtr(10), nil)

	result, err := s.parser.Parse(ctx, agents.ParseInput{
		Model:                model,
		HTML:                 html,
		VisibleText:          visibleText,
		Clipboard:            clipboard,
		PersonalInstructions: personal,
		Screenshots:          in.Screenshots,
	})
	if err != nil {
		if s.cancelled(ctx, persist, in.RequestID) {
			return nil, 0, false
		}
		s.emit(persist, in.RequestID, models.StageParserFailed, "Failed to parse form structure", nil, nil)
		s.finishFailed(persist, in.RequestID, "Failed to parse form structure")
		return nil, 0, false
	}

	s.debug.WriteRaw(in.RequestID, "parser_response", result.RawResponse)

	questions := NormalizeQuestions(result.Questions)
	s.debug.WriteJSON(in.RequestID, "questions", questions)

	s.emit(persist, in.RequestID, models.StageParserCompleted, "Form structure analyzed", intPtr(40),
		map[string]interface{}{"questions": len(questions)})
	return questions, result.TotalInputs, true
}

// runSolvePhase fans out one solver task per question under a bounded
// concurrency limit. Solver failures degrade to an error-string solution and
// never abort the phase; only cancellation does.
func (s *FormPipelineService) runSolvePhase(ctx, persist context.Context, in PipelineInput, model string,
	clipboard, personal string, questions []*models.Question) ([]string, bool) {

	s.updateStatus(persist, in.RequestID, models.RequestStatusProcessingStep2, nil, "")
	s.emit(persist, in.RequestID, models.StageSolutionsStarted, "Solving questions", intPtr(50),
		map[string]interface{}{"total_questions": len(questions)})

	total := len(questions)
	solutions := make([]string, total)
	successCount := 0

	var mu sync.Mutex
	completed := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.solverConcurrency)

	for i, question := range questions {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}

			retrieved := s.rag.RetrieveRelevantContext(groupCtx, in.UserID,
				question.RetrievalQuery(maxRetrievalOptions))
			excerpts, images := splitRetrieved(retrieved)

			solution, err := s.solver.Solve(groupCtx, agents.SolveInput{
				Model:                model,
				SessionInstructions:  clipboard,
				PersonalInstructions: personal,
				Excerpts:             excerpts,
				Images:               images,
				Question:             question,
			})
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}

			success := err == nil
			if err != nil {
				metrics.AgentRetries.WithLabelValues("solver").Inc()
				solution = "Error: " + err.Error()
				s.logger.Warn("solver failed for question",
					"request_id", in.RequestID, "question_id", question.ID, "error", err)
			}
			solutions[i] = solution

			mu.Lock()
			completed++
			k := completed
			if success {
				successCount++
			}
			percent := 50 + (k*25)/total
			if percent > 75 {
				percent = 75
			}
			s.emit(persist, in.RequestID, models.StageSolutionsProgress,
				fmt.Sprintf("Solved question %d of %d", k, total), intPtr(percent),
				map[string]interface{}{
					"question_number": k,
					"total_questions": total,
					"question_id":     question.ID,
					"success":         success,
				})
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		// Only cancellation propagates out of the group.
		s.cancelled(ctx, persist, in.RequestID)
		return nil, false
	}

	s.debug.WriteJSON(in.RequestID, "solutions", solutions)
	s.emit(persist, in.RequestID, models.StageSolutionsCompleted, "All questions solved", intPtr(80),
		map[string]interface{}{"total": total, "success": successCount})
	return solutions, true
}

// runActionPhase batches question/solution pairs through the action agent,
// post-processes and persists the result.
func (s *FormPipelineService) runActionPhase(ctx, persist context.Context, in PipelineInput, model string,
	questions []*models.Question, solutions []string) bool {

	s.emit(persist, in.RequestID, models.StageActionsStarted, "Generating actions", intPtr(85), nil)

	type batch struct {
		entries []map[string]interface{}
	}
	batches := make([]batch, 0, (len(questions)+s.actionBatchSize-1)/s.actionBatchSize)
	for start := 0; start < len(questions); start += s.actionBatchSize {
		end := start + s.actionBatchSize
		if end > len(questions) {
			end = len(questions)
		}
		entries := make([]map[string]interface{}, 0, end-start)
		for i := start; i < end; i++ {
			entries = append(entries, questions[i].ActionView(i, solutions[i]))
		}
		batches = append(batches, batch{entries: entries})
	}

	// Batching itself bounds LLM concurrency; batches run unconstrained.
	results := make([][]agents.GeneratedAction, len(batches))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, b := range batches {
		group.Go(func() error {
			generated, err := s.action.GenerateActions(groupCtx, model, b.entries)
			if err != nil {
				return err
			}
			results[i] = generated
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if s.cancelled(ctx, persist, in.RequestID) {
			return false
		}
		metrics.AgentRetries.WithLabelValues("action").Inc()
		s.emit(persist, in.RequestID, models.StageActionsFailed, "Failed to generate actions", nil, nil)
		s.finishFailed(persist, in.RequestID, "Failed to generate actions")
		return false
	}
	if s.cancelled(ctx, persist, in.RequestID) {
		return false
	}

	// Concatenate in batch order.
	var generated []agents.GeneratedAction
	for _, batchActions := range results {
		generated = append(generated, batchActions...)
	}
	if len(generated) == 0 {
		s.emit(persist, in.RequestID, models.StageActionsFailed, "No actions generated", nil, nil)
		s.finishFailed(persist, in.RequestID, "Failed to generate actions")
		return false
	}

	s.emit(persist, in.RequestID, models.StageActionsGenerated, "Actions generated", intPtr(90),
		map[string]interface{}{"actions": len(generated)})

	actions := PostProcessActions(in.RequestID, generated)
	s.debug.WriteJSON(in.RequestID, "actions", actions)

	if err := s.requestRepo.SaveActions(persist, in.RequestID, actions); err != nil {
		s.logger.Error("failed to persist actions", "request_id", in.RequestID, "error", err)
		s.finishFailed(persist, in.RequestID, "Failed to save actions")
		return false
	}
	s.emit(persist, in.RequestID, models.StageActionsSaved, "Actions saved", intPtr(95),
		map[string]interface{}{"actions": len(actions)})
	return true
}

// cancelled checks the task context at a suspension point and, when the run
// was cancelled, writes the matching terminal record. A user cancel emits a
// cancelled event without forcing the status to failed; a shutdown cancel
// marks the request failed.
func (s *FormPipelineService) cancelled(ctx, persist context.Context, requestID string) bool {
	if ctx.Err() == nil {
		return false
	}

	if errors.Is(context.Cause(ctx), workers.ErrShutdown) {
		s.finishFailed(persist, requestID, "Server shutdown before completion")
		return true
	}

	s.emit(persist, requestID, models.StageCancelled, "Request cancelled", nil, nil)
	metrics.RequestsFinished.WithLabelValues("cancelled").Inc()
	s.logger.Info("pipeline cancelled", "request_id", requestID)
	return true
}

func (s *FormPipelineService) finishCompleted(persist context.Context, requestID string, fieldsDetected *int) {
	s.updateStatus(persist, requestID, models.RequestStatusCompleted, fieldsDetected, "")
	s.emit(persist, requestID, models.StageCompleted, "Analysis complete", intPtr(100), nil)
	metrics.RequestsFinished.WithLabelValues("completed").Inc()
	s.logger.Info("pipeline completed", "request_id", requestID, "fields_detected", derefInt(fieldsDetected))
}

func (s *FormPipelineService) finishFailed(persist context.Context, requestID, message string) {
	s.updateStatus(persist, requestID, models.RequestStatusFailed, nil, message)
	s.emit(persist, requestID, models.StageFailed, message, nil, nil)
	metrics.RequestsFinished.WithLabelValues("failed").Inc()
	s.logger.Error("pipeline failed", "request_id", requestID, "error", message)
}

func (s *FormPipelineService) updateStatus(ctx context.Context, requestID string, status models.FormRequestStatus, fieldsDetected *int, errorMessage string) {
	if err := s.requestRepo.UpdateStatus(ctx, requestID, status, fieldsDetected, errorMessage); err != nil {
		s.logger.Error("failed to update request status",
			"request_id", requestID, "status", status, "error", err)
	}
}

func (s *FormPipelineService) emit(ctx context.Context, requestID, stage, message string, progress *int, payload map[string]interface{}) {
	if err := s.requestRepo.LogProgress(ctx, requestID, stage, message, progress, payload); err != nil {
		s.logger.Warn("failed to log progress",
			"request_id", requestID, "stage", stage, "error", err)
	}
}

// NormalizeQuestions cleans up parser output in place: labels are trimmed and
// inline whitespace collapsed (paragraph breaks in multi-line text are
// preserved), and questions missing an id get a stable synthesized one.
func NormalizeQuestions(questions []*models.Question) []*models.Question {
	counter := 0
	for _, question := range questions {
		text := question.QuestionData.Question
		if containsNewline(text) {
			question.QuestionData.Question = SanitizeText(text)
		} else {
			question.QuestionData.Question = NormalizeLabel(text)
		}

		for i := range question.InteractionData.Targets {
			question.InteractionData.Targets[i].Label = NormalizeLabel(question.InteractionData.Targets[i].Label)
		}

		if question.ID == "" {
			if selector := question.InteractionData.PrimarySelector; selector != "" {
				question.ID = selector
			} else {
				question.ID = fmt.Sprintf("question_%d", counter)
			}
		}
		counter++
	}
	return questions
}

// splitRetrieved separates retrieval output into solver prompt excerpts and
// attachable image bytes.
func splitRetrieved(retrieved []models.RetrievedChunk) ([]agents.ContextExcerpt, [][]byte) {
	excerpts := make([]agents.ContextExcerpt, 0, len(retrieved))
	var images [][]byte
	for _, result := range retrieved {
		switch result.Chunk.ChunkType {
		case models.ChunkTypeImage:
			if len(result.Chunk.RawContent) > 0 {
				images = append(images, result.Chunk.RawContent)
			}
			if result.Chunk.Content != "" {
				excerpts = append(excerpts, agents.ContextExcerpt{
					SourceLabel: result.SourceLabel,
					Text:        result.Chunk.Content,
				})
			}
		default:
			excerpts = append(excerpts, agents.ContextExcerpt{
				SourceLabel: result.SourceLabel,
				Text:        result.Chunk.Content,
			})
		}
	}
	return excerpts, images
}

func containsNewline(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return true
		}
	}
	return false
}

func intPtr(v int) *int {
	return &v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
