package council

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/conclave-labs/conclave/pkg/config"
	"github.com/conclave-labs/conclave/pkg/events"
	"github.com/conclave-labs/conclave/pkg/llm"
)

// Boundary errors. These surface to the HTTP layer before any stage runs;
// everything else degrades and is recorded in the decision trace instead.
var (
	ErrEmptyPrompt    = errors.New("prompt must not be empty")
	ErrPromptTooLarge = errors.New("prompt exceeds the configured size limit")
	ErrMissingAPIKey  = errors.New("MODEL_API_KEY is not configured; cannot reach the model gateway")
)

// Non-model error kinds recorded in DecisionTrace.Errors.
const (
	errKindConsensusUndefined = "consensus_undefined"
	errKindStoreFailure       = "store_failure"
	errKindClientDisconnected = "client_disconnected"
	errKindInternal           = "internal"
)

// ConversationStore is the slice of the conversation store the orchestrator
// needs: durable, ordered appends plus the title upgrade.
type ConversationStore interface {
	AppendMessage(ctx context.Context, conversationID string, message any) error
	UpdateTitle(ctx context.Context, conversationID, title string) error
}

// RunRequest is one user message to deliberate on.
type RunRequest struct {
	ConversationID string
	Prompt         string
	// ContractIDs is the resolved contract stack, base contract first.
	ContractIDs []string
	// GenerateTitle asks for a conversation title (first message only).
	GenerateTitle bool
}

// RunResult is the outcome of a run: the persisted assistant message and the
// conversation title when one was generated.
type RunResult struct {
	Message *AssistantMessage
	Title   string
}

// Orchestrator sequences one deliberation run: Stage 1 fan-out, Stage 2
// judging with consensus scoring, optional adjudication, Stage 3 synthesis,
// title generation, persistence. Safe for concurrent runs; all per-run state
// lives on the stack.
type Orchestrator struct {
	cfg     *config.Config
	runner  *StageRunner
	prompts *PromptBuilder
	store   ConversationStore
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(cfg *config.Config, client llm.ModelClient, store ConversationStore) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		runner:  NewStageRunner(client, cfg.Retry),
		prompts: NewPromptBuilder(),
		store:   store,
	}
}

// ValidatePrompt applies the boundary checks that must reject a request
// before any stage runs.
func (o *Orchestrator) ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	if len(prompt) > o.cfg.MaxPromptBytes {
		return fmt.Errorf("%w: %d bytes over the %d byte limit",
			ErrPromptTooLarge, len(prompt)-o.cfg.MaxPromptBytes, o.cfg.MaxPromptBytes)
	}
	return nil
}

// Run executes the full pipeline for one user message, emitting stage events
// to sink as it goes. A non-nil error is returned only for fatal boundary
// failures (invalid prompt, missing credentials); every mid-run failure
// degrades the output and is recorded in the decision trace instead.
//
// If the sink reports the client gone, outstanding model calls are cancelled
// and no further events are emitted, but the run still assembles its trace
// and persists the message.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, sink events.Sink) (*RunResult, error) {
	if err := o.ValidatePrompt(req.Prompt); err != nil {
		_ = sink.Emit(events.Event{Type: events.TypeError, Message: err.Error()})
		return nil, err
	}
	if o.cfg.APIKey == "" {
		_ = sink.Emit(events.Event{Type: events.TypeError, Message: ErrMissingAPIKey.Error()})
		return nil, ErrMissingAPIKey
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &runState{sink: sink, cancel: cancel}

	logger := slog.With("conversation_id", req.ConversationID)
	logger.Info("Starting deliberation run",
		"council_size", len(o.cfg.Council), "contracts", strings.Join(req.ContractIDs, ","))

	// Stage 1: parallel generation.
	run.emit(events.Event{Type: events.TypeStage1Start})
	answers := o.runStage1(runCtx, req, run)

	labels, err := Anonymize(answers)
	if err != nil {
		run.record(RunError{Stage: "stage1", Kind: errKindInternal, Message: err.Error()})
		labels = &LabelMap{byLabel: map[string]string{}, byModel: map[string]string{}}
	}
	run.emit(events.Event{Type: events.TypeStage1Complete, Data: answers})

	var (
		judgements   []Judgement
		metrics      ConsensusMetrics
		adjudication *AdjudicationRecord
		stage3       Stage3Result
	)

	if labels.Len() == 0 {
		// Nothing survived generation; there is nothing to judge or
		// synthesize. The run still produces a well-formed message.
		run.record(RunError{Stage: "stage1", Kind: errKindInternal,
			Message: "no council member produced an answer"})
		judgements = []Judgement{}
		run.emit(events.Event{Type: events.TypeError,
			Message: "all council members failed to answer"})
		run.terminal = true
	} else {
		// Stage 2: anonymized peer review.
		run.emit(events.Event{Type: events.TypeStage2Start})
		judgements = o.runStage2(runCtx, req, answers, labels, run)
		metrics = ScoreConsensus(judgements, labels)
		if !metrics.Defined() {
			run.record(RunError{Stage: "stage2", Kind: errKindConsensusUndefined,
				Message: "no non-partial judgement; consensus undefined"})
		}
		run.emit(events.Event{
			Type:     events.TypeStage2Complete,
			Data:     judgements,
			Metadata: o.buildTrace(req, labels, metrics, run.errors, nil),
		})

		// Optional adjudication between Stages 2 and 3.
		if triggered, reason := ShouldAdjudicate(metrics); triggered {
			adjudication = o.runAdjudication(runCtx, req, answers, labels, judgements, &metrics, reason, run)
		}

		// Stage 3: chairman synthesis.
		run.emit(events.Event{Type: events.TypeStage3Start})
		stage3 = o.runStage3(runCtx, req, answers, labels, metrics, run)
		run.emit(events.Event{Type: events.TypeStage3Complete, Data: stage3})
	}

	// The error event is terminal; a run that ended there emits nothing
	// further, title included.
	title := ""
	if req.GenerateTitle && !run.terminal {
		title = o.generateTitle(runCtx, req, run)
		run.emit(events.Event{Type: events.TypeTitleComplete, Title: title})
	}

	trace := o.buildTrace(req, labels, metrics, run.errors, adjudication)
	message := &AssistantMessage{
		Role:     "assistant",
		Stage1:   answers,
		Stage2:   judgements,
		Stage3:   stage3,
		Meta:     trace,
		Metadata: trace,
	}

	o.persist(ctx, req, message, title, run, logger)

	if !run.terminal {
		run.emit(events.Event{Type: events.TypeComplete, Data: message})
	}
	logger.Info("Deliberation run finished",
		"labels", labels.Len(), "errors", len(run.errors), "client_gone", run.gone)

	return &RunResult{Message: message, Title: title}, nil
}

// runStage1 fans the prompt out to every council member under its role.
func (o *Orchestrator) runStage1(ctx context.Context, req RunRequest, run *runState) []Stage1Answer {
	tasks := make([]Task, len(o.cfg.Council))
	for i, member := range o.cfg.Council {
		system, err := o.prompts.BuildStage1SystemPrompts(req.ContractIDs, member.Role)
		if err != nil {
			// Roles are validated at config load; this is unreachable short
			// of a programming error.
			system = []string{}
		}
		tasks[i] = Task{Model: member.Model, SystemPrompts: system, UserPrompt: req.Prompt}
	}

	results := o.runner.RunAll(ctx, tasks, o.cfg.Stage1Timeout)

	answers := make([]Stage1Answer, len(results))
	for i, res := range results {
		member := o.cfg.Council[i]
		answers[i] = Stage1Answer{
			Model:     member.Model,
			Role:      member.Role,
			LatencyMS: res.Latency.Milliseconds(),
		}
		if res.OK() {
			answers[i].Text = res.Text
			continue
		}
		answers[i].Error = res.Err.Error()
		answers[i].ErrorKind = string(res.ErrKind())
		run.record(RunError{
			Stage: "stage1", Kind: string(res.ErrKind()),
			Model: member.Model, Message: res.Err.Error(),
		})
	}
	return answers
}

// runStage2 has every eligible judge rank the anonymized answers and parses
// each output against the critique contract. Judges are the council members
// whose Stage-1 call did not fail permanently.
func (o *Orchestrator) runStage2(
	ctx context.Context,
	req RunRequest,
	answers []Stage1Answer,
	labels *LabelMap,
	run *runState,
) []Judgement {
	public := labels.ToPublic(answers)
	userPrompt := o.prompts.BuildJudgeUserPrompt(req.Prompt, public)
	system := o.prompts.BuildJudgeSystemPrompts(req.ContractIDs)

	var judges []string
	for i, member := range o.cfg.Council {
		if answers[i].ErrorKind == string(llm.ErrorKindPermanent) {
			continue
		}
		judges = append(judges, member.Model)
	}

	tasks := make([]Task, len(judges))
	for i, model := range judges {
		tasks[i] = Task{Model: model, SystemPrompts: system, UserPrompt: userPrompt}
	}
	results := o.runner.RunAll(ctx, tasks, o.cfg.Stage2Timeout)

	parser := NewRankingParser(labels.Labels(), answersByLabel(answers, labels))
	judgements := make([]Judgement, len(results))
	for i, res := range results {
		if res.OK() {
			j := parser.Parse(res.Text)
			j.Model = res.Model
			j.LatencyMS = res.Latency.Milliseconds()
			judgements[i] = *j
			continue
		}
		reason := PartialReasonModelError
		if res.ErrKind() == llm.ErrorKindTimeout {
			reason = PartialReasonTimeout
		}
		judgements[i] = Judgement{
			Model:         res.Model,
			ParsedRanking: []string{},
			Critiques:     map[string]Critique{},
			Partial:       true,
			PartialReason: reason,
			LatencyMS:     res.Latency.Milliseconds(),
		}
		run.record(RunError{
			Stage: "stage2", Kind: string(res.ErrKind()),
			Model: res.Model, Message: res.Err.Error(),
		})
	}
	return judgements
}

// runAdjudication re-judges the answer set with the adjudicator model and
// merges its verdict into the consensus when it is non-partial.
func (o *Orchestrator) runAdjudication(
	ctx context.Context,
	req RunRequest,
	answers []Stage1Answer,
	labels *LabelMap,
	judgements []Judgement,
	metrics *ConsensusMetrics,
	reason string,
	run *runState,
) *AdjudicationRecord {
	record := &AdjudicationRecord{TriggeredReason: reason}
	model := o.cfg.AdjudicatorOrChairman()
	public := labels.ToPublic(answers)

	res := o.runner.RunOne(ctx, Task{
		Model:         model,
		SystemPrompts: o.prompts.BuildAdjudicatorSystemPrompts(req.ContractIDs),
		UserPrompt:    o.prompts.BuildAdjudicatorUserPrompt(req.Prompt, public, judgements),
	}, o.cfg.Stage2Timeout)

	if !res.OK() {
		run.record(RunError{
			Stage: "adjudication", Kind: string(res.ErrKind()),
			Model: model, Message: res.Err.Error(),
		})
		return record
	}

	parser := NewRankingParser(labels.Labels(), answersByLabel(answers, labels))
	j := parser.Parse(res.Text)
	j.Model = model
	j.Adjudicator = true
	j.LatencyMS = res.Latency.Milliseconds()
	record.Result = j
	record.Replaced = MergeAdjudication(metrics, j)
	return record
}

// runStage3 asks the chairman to synthesize the final answer from the
// consensus base. A failed call leaves stage3 empty; the run continues.
func (o *Orchestrator) runStage3(
	ctx context.Context,
	req RunRequest,
	answers []Stage1Answer,
	labels *LabelMap,
	metrics ConsensusMetrics,
	run *runState,
) Stage3Result {
	baseLabel := metrics.Top1Consensus
	if baseLabel == "" {
		// Consensus undefined: default to the first label.
		baseLabel = labels.Labels()[0]
	}

	res := o.runner.RunOne(ctx, Task{
		Model:         o.cfg.ChairmanModel,
		SystemPrompts: o.prompts.BuildChairmanSystemPrompts(req.ContractIDs),
		UserPrompt: o.prompts.BuildChairmanUserPrompt(
			req.Prompt, labels.ToPublic(answers), baseLabel, metrics.AggregateRankings),
	}, o.cfg.Stage3Timeout)

	if !res.OK() {
		run.record(RunError{
			Stage: "stage3", Kind: string(res.ErrKind()),
			Model: o.cfg.ChairmanModel, Message: res.Err.Error(),
		})
		return Stage3Result{}
	}

	text, statedBase, contributors, rejections := ParseChairmanOutput(res.Text)
	if _, ok := labels.Model(statedBase); !ok {
		statedBase = baseLabel
	}
	return Stage3Result{
		Model:        o.cfg.ChairmanModel,
		Text:         text,
		BaseLabel:    statedBase,
		Contributors: contributors,
		Rejections:   rejections,
		LatencyMS:    res.Latency.Milliseconds(),
	}
}

// generateTitle makes the best-effort title call and falls back to deriving
// a title from the prompt itself. Failure is never recorded as a run error.
func (o *Orchestrator) generateTitle(ctx context.Context, req RunRequest, run *runState) string {
	res := o.runner.RunOne(ctx, Task{
		Model:      o.cfg.ChairmanModel,
		UserPrompt: o.prompts.BuildTitleUserPrompt(req.Prompt),
	}, o.cfg.TitleTimeout)

	if res.OK() {
		if title := CleanModelTitle(res.Text); title != "" {
			return title
		}
	}
	return DeriveTitle(req.Prompt)
}

// buildTrace assembles the decision trace from the run's accumulated state.
// Called twice: once for the stage2_complete event (without adjudication) and
// once, final, for the persisted message.
func (o *Orchestrator) buildTrace(
	req RunRequest,
	labels *LabelMap,
	metrics ConsensusMetrics,
	runErrors []RunError,
	adjudication *AdjudicationRecord,
) *DecisionTrace {
	modelRoles := make(map[string]string, len(o.cfg.Council))
	for _, member := range o.cfg.Council {
		modelRoles[member.Model] = member.Role
	}

	trace := &DecisionTrace{
		ContractStack:     strings.Join(req.ContractIDs, ","),
		LabelToModel:      labels.ToModelMap(),
		AggregateRankings: metrics.AggregateRankings,
		ModelRoles:        modelRoles,
		Errors:            append([]RunError{}, runErrors...),
		Top1Consensus:     metrics.Top1Consensus,
		Top1Support:       metrics.Top1Support,
		EvidenceOKRate:    metrics.EvidenceOKRate,
		PartialRate:       metrics.PartialRate,
		Adjudication:      adjudication,
	}
	if trace.AggregateRankings == nil {
		trace.AggregateRankings = []AggregateRank{}
	}
	return trace
}

// persist appends the assistant message (and title, when present) to the
// conversation store. Persistence survives client disconnect and run
// cancellation; a store failure is the one mid-run error that also reaches
// the client as an error event.
func (o *Orchestrator) persist(
	ctx context.Context,
	req RunRequest,
	message *AssistantMessage,
	title string,
	run *runState,
	logger *slog.Logger,
) {
	if o.store == nil || req.ConversationID == "" {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if title != "" {
		if err := o.store.UpdateTitle(storeCtx, req.ConversationID, title); err != nil {
			logger.Error("Failed to store conversation title", "error", err)
		}
	}
	if err := o.store.AppendMessage(storeCtx, req.ConversationID, message); err != nil {
		logger.Error("Failed to persist assistant message", "error", err)
		message.Meta.Errors = append(message.Meta.Errors, RunError{
			Stage: "persist", Kind: errKindStoreFailure, Message: err.Error(),
		})
		run.emit(events.Event{Type: events.TypeError,
			Message: "failed to persist the assistant message: " + err.Error()})
	}
}

// answersByLabel builds the label -> answer text map the parser's evidence
// rule checks against.
func answersByLabel(answers []Stage1Answer, labels *LabelMap) map[string]string {
	out := make(map[string]string, labels.Len())
	for _, a := range answers {
		if a.Failed() {
			continue
		}
		if label, ok := labels.Label(a.Model); ok {
			out[label] = a.Text
		}
	}
	return out
}

// runState is the per-run mutable state shared by the stage helpers: the
// event sink, the degraded-path error list, and the client-gone flag.
type runState struct {
	sink     events.Sink
	cancel   context.CancelFunc
	gone     bool
	terminal bool
	errors   []RunError
}

// emit forwards one event to the sink. The first failed emit marks the
// client gone, cancels outstanding model calls, and silences further events.
func (r *runState) emit(e events.Event) {
	if r.gone {
		return
	}
	if err := r.sink.Emit(e); err != nil {
		r.gone = true
		r.record(RunError{Kind: errKindClientDisconnected, Message: err.Error()})
		r.cancel()
	}
}

func (r *runState) record(e RunError) {
	r.errors = append(r.errors, e)
}
