package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-labs/conclave/pkg/config"
	"github.com/conclave-labs/conclave/pkg/events"
	"github.com/conclave-labs/conclave/pkg/llm"
	"github.com/conclave-labs/conclave/pkg/roles"
)

// fakeGateway scripts every model call of a run. The pipeline stage is
// recognized from the prompt text, the way a real gateway would see it.
type fakeGateway struct {
	mu sync.Mutex

	stage1    map[string]string
	stage1Err map[string]error
	judge     map[string]string
	judgeErr  map[string]error

	chairman       string
	chairmanErr    error
	adjudicator    string
	adjudicatorErr error
	title          string
	titleErr       error
}

func (g *fakeGateway) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case strings.Contains(req.UserPrompt, "re-judging from scratch"):
		return g.adjudicator, g.adjudicatorErr
	case strings.Contains(req.UserPrompt, "synthesizing the council's final answer"):
		return g.chairman, g.chairmanErr
	case strings.Contains(req.UserPrompt, "Write a short title"):
		return g.title, g.titleErr
	case strings.Contains(req.UserPrompt, "ANONYMIZED RESPONSES"):
		if err, ok := g.judgeErr[req.Model]; ok {
			return "", err
		}
		return g.judge[req.Model], nil
	default:
		if err, ok := g.stage1Err[req.Model]; ok {
			return "", err
		}
		return g.stage1[req.Model], nil
	}
}

// recordingStore captures persisted messages and titles.
type recordingStore struct {
	mu       sync.Mutex
	messages []any
	titles   []string
}

func (s *recordingStore) AppendMessage(_ context.Context, _ string, message any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordingStore) UpdateTitle(_ context.Context, _ string, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return nil
}

// failAfterSink emits normally until the given event type has been emitted,
// then reports the client gone on every later emit.
type failAfterSink struct {
	collector *events.Collector
	failAfter events.Type
	tripped   bool
}

func (s *failAfterSink) Emit(e events.Event) error {
	if s.tripped {
		return errors.New("client went away")
	}
	if err := s.collector.Emit(e); err != nil {
		return err
	}
	if e.Type == s.failAfter {
		s.tripped = true
	}
	return nil
}

var testCouncil = []config.CouncilMember{
	{Model: "m1", Role: roles.RoleBuilder},
	{Model: "m2", Role: roles.RoleSkeptic},
	{Model: "m3", Role: roles.RoleMinimalist},
	{Model: "m4", Role: roles.RoleAuditor},
}

func testConfig() *config.Config {
	return &config.Config{
		Council:        testCouncil,
		ChairmanModel:  "chair",
		APIKey:         "test-key",
		Stage1Timeout:  time.Second,
		Stage2Timeout:  time.Second,
		Stage3Timeout:  time.Second,
		TitleTimeout:   time.Second,
		MaxPromptBytes: 4096,
		Retry: config.RetryPolicy{
			MaxAttempts: 1,
			BackoffBase: time.Millisecond,
			BackoffCap:  time.Millisecond,
		},
	}
}

// stage1Answers gives each model a distinct answer carrying a quotable token.
func stage1Answers() map[string]string {
	return map[string]string{
		"m1": "Reach for `bisect-left` on the sorted input.",
		"m2": "Reach for `linear-scan` and keep the code obvious.",
		"m3": "Reach for `two-pointer` sweeps to avoid allocation.",
		"m4": "Reach for `input-validation` before any processing.",
	}
}

// judgeOutput builds a contract-conforming judgement whose critiques quote
// each answer's token. Labels A..D map to m1..m4 in council order.
func judgeOutput(ranking ...string) string {
	tokens := map[string]string{
		"A": "bisect-left", "B": "linear-scan", "C": "two-pointer", "D": "input-validation",
	}
	var b strings.Builder
	for _, label := range []string{"A", "B", "C", "D"} {
		fmt.Fprintf(&b, "Response %s: Strength: sound use of `%s`; Flaw: little error handling\n",
			label, tokens[label])
	}
	b.WriteString("FINAL_RANKING:")
	for i, label := range ranking {
		if i > 0 {
			b.WriteString(" >")
		}
		b.WriteString(" Response " + label)
	}
	return b.String()
}

func unanimousGateway() *fakeGateway {
	ranking := judgeOutput("C", "A", "B", "D")
	return &fakeGateway{
		stage1: stage1Answers(),
		judge: map[string]string{
			"m1": ranking, "m2": ranking, "m3": ranking, "m4": ranking,
		},
		chairman: "Use two-pointer sweeps, validated first.\n\n" +
			"```json\n{\"base_label\": \"C\", \"contributors\": [{\"label\": \"D\", \"reason\": \"validation first\", \"dimension\": \"risk_safety\"}], \"rejections\": [{\"label\": \"B\", \"point\": \"linear scan\", \"reason\": \"quadratic on large inputs\"}]}\n```",
		title: "Fast duplicate detection",
	}
}

func runRequest(generateTitle bool) RunRequest {
	return RunRequest{
		ConversationID: "conv-1",
		Prompt:         "What is the fastest way to detect duplicates in a slice?",
		ContractIDs:    []string{roles.ContractFactoryTruth},
		GenerateTitle:  generateTitle,
	}
}

func TestRun_HappyPath(t *testing.T) {
	st := &recordingStore{}
	o := NewOrchestrator(testConfig(), unanimousGateway(), st)
	sink := events.NewCollector()

	result, err := o.Run(context.Background(), runRequest(true), sink)
	require.NoError(t, err)

	assert.Equal(t, []events.Type{
		events.TypeStage1Start,
		events.TypeStage1Complete,
		events.TypeStage2Start,
		events.TypeStage2Complete,
		events.TypeStage3Start,
		events.TypeStage3Complete,
		events.TypeTitleComplete,
		events.TypeComplete,
	}, sink.Types())

	msg := result.Message
	require.NotNil(t, msg)
	assert.Equal(t, "assistant", msg.Role)
	require.Len(t, msg.Stage1, 4)
	require.Len(t, msg.Stage2, 4)
	for _, j := range msg.Stage2 {
		assert.False(t, j.Partial)
		assert.Equal(t, []string{"C", "A", "B", "D"}, j.ParsedRanking)
	}

	assert.Equal(t, "C", msg.Stage3.BaseLabel)
	assert.Contains(t, msg.Stage3.Text, "two-pointer sweeps")
	assert.NotContains(t, msg.Stage3.Text, "base_label", "structured block must be stripped from the text")
	require.Len(t, msg.Stage3.Contributors, 1)
	assert.Equal(t, "D", msg.Stage3.Contributors[0].Label)

	trace := msg.Meta
	require.NotNil(t, trace)
	assert.Same(t, msg.Meta, msg.Metadata)
	assert.Equal(t, "C", trace.Top1Consensus)
	assert.InDelta(t, 1.0, trace.Top1Support, 1e-9)
	assert.Equal(t, map[string]string{"A": "m1", "B": "m2", "C": "m3", "D": "m4"}, trace.LabelToModel)
	assert.Equal(t, roles.RoleSkeptic, trace.ModelRoles["m2"])
	assert.Empty(t, trace.Errors)
	assert.Nil(t, trace.Adjudication)

	assert.Equal(t, "Fast duplicate detection", result.Title)
	assert.Equal(t, []string{"Fast duplicate detection"}, st.titles)
	require.Len(t, st.messages, 1)
	assert.Same(t, msg, st.messages[0])
}

func TestRun_BoundaryRejections(t *testing.T) {
	o := NewOrchestrator(testConfig(), unanimousGateway(), nil)

	t.Run("empty prompt", func(t *testing.T) {
		sink := events.NewCollector()
		_, err := o.Run(context.Background(), RunRequest{Prompt: "  "}, sink)
		assert.ErrorIs(t, err, ErrEmptyPrompt)
		assert.Equal(t, []events.Type{events.TypeError}, sink.Types())
	})

	t.Run("prompt too large", func(t *testing.T) {
		sink := events.NewCollector()
		req := RunRequest{Prompt: strings.Repeat("x", 5000)}
		_, err := o.Run(context.Background(), req, sink)
		assert.ErrorIs(t, err, ErrPromptTooLarge)
	})

	t.Run("missing API key", func(t *testing.T) {
		cfg := testConfig()
		cfg.APIKey = ""
		sink := events.NewCollector()
		_, err := NewOrchestrator(cfg, unanimousGateway(), nil).Run(
			context.Background(), runRequest(false), sink)
		assert.ErrorIs(t, err, ErrMissingAPIKey)
		assert.Equal(t, []events.Type{events.TypeError}, sink.Types())
	})
}

func TestRun_Stage1FailuresDegrade(t *testing.T) {
	gw := unanimousGateway()
	gw.stage1Err = map[string]error{
		"m4": llm.NewError(llm.ErrorKindPermanent, "m4", errors.New("model retired")),
	}
	// With m4 gone, only labels A..C exist.
	ranking := "Response A: Strength: sound use of `bisect-left`; Flaw: none\n" +
		"Response B: Strength: sound use of `linear-scan`; Flaw: none\n" +
		"Response C: Strength: sound use of `two-pointer`; Flaw: none\n" +
		"FINAL_RANKING: Response A > Response C > Response B"
	gw.judge = map[string]string{"m1": ranking, "m2": ranking, "m3": ranking}

	o := NewOrchestrator(testConfig(), gw, nil)
	sink := events.NewCollector()
	result, err := o.Run(context.Background(), runRequest(false), sink)
	require.NoError(t, err)

	msg := result.Message
	require.Len(t, msg.Stage1, 4)
	assert.Equal(t, "permanent", msg.Stage1[3].ErrorKind)
	// Permanently failed members do not judge either.
	require.Len(t, msg.Stage2, 3)
	assert.Equal(t, "A", msg.Meta.Top1Consensus)
	assert.NotContains(t, msg.Meta.LabelToModel, "D")

	require.NotEmpty(t, msg.Meta.Errors)
	assert.Equal(t, "stage1", msg.Meta.Errors[0].Stage)
	assert.Equal(t, "m4", msg.Meta.Errors[0].Model)
}

func TestRun_ZeroStage1AnswersSkipsLaterStages(t *testing.T) {
	gw := &fakeGateway{
		stage1Err: map[string]error{
			"m1": llm.NewError(llm.ErrorKindPermanent, "m1", errors.New("down")),
			"m2": llm.NewError(llm.ErrorKindPermanent, "m2", errors.New("down")),
			"m3": llm.NewError(llm.ErrorKindPermanent, "m3", errors.New("down")),
			"m4": llm.NewError(llm.ErrorKindPermanent, "m4", errors.New("down")),
		},
	}
	st := &recordingStore{}
	o := NewOrchestrator(testConfig(), gw, st)
	sink := events.NewCollector()

	result, err := o.Run(context.Background(), runRequest(false), sink)
	require.NoError(t, err, "a dead council degrades, it does not raise")

	assert.Equal(t, []events.Type{
		events.TypeStage1Start,
		events.TypeStage1Complete,
		events.TypeError,
	}, sink.Types())

	msg := result.Message
	assert.Len(t, msg.Stage1, 4)
	assert.Empty(t, msg.Stage2)
	assert.True(t, msg.Stage3.Empty())
	assert.Empty(t, msg.Meta.LabelToModel)
	assert.NotEmpty(t, msg.Meta.Errors)
	require.Len(t, st.messages, 1, "the degraded message is still persisted")
}

func TestRun_DeadCouncilEndsEventStreamAtError(t *testing.T) {
	gw := &fakeGateway{
		stage1Err: map[string]error{
			"m1": llm.NewError(llm.ErrorKindPermanent, "m1", errors.New("down")),
			"m2": llm.NewError(llm.ErrorKindPermanent, "m2", errors.New("down")),
			"m3": llm.NewError(llm.ErrorKindPermanent, "m3", errors.New("down")),
			"m4": llm.NewError(llm.ErrorKindPermanent, "m4", errors.New("down")),
		},
		title: "A title that must never be requested",
	}
	st := &recordingStore{}
	o := NewOrchestrator(testConfig(), gw, st)
	sink := events.NewCollector()

	// First message of a conversation, so a title would normally be generated.
	result, err := o.Run(context.Background(), runRequest(true), sink)
	require.NoError(t, err)

	assert.Equal(t, []events.Type{
		events.TypeStage1Start,
		events.TypeStage1Complete,
		events.TypeError,
	}, sink.Types(), "nothing may follow the error event")

	assert.Empty(t, result.Title)
	assert.Empty(t, st.titles)
	require.Len(t, st.messages, 1, "the degraded message is still persisted")
}

func TestRun_AllJudgesPartial(t *testing.T) {
	gw := unanimousGateway()
	gw.judge = map[string]string{
		"m1": "I refuse to rank these.",
		"m2": "They all look fine to me.",
		"m3": "No comment.",
		"m4": "Cannot decide.",
	}
	// Plain chairman output, so the base label comes from the fallback.
	gw.chairman = "Here is a synthesis of the council's answers."

	o := NewOrchestrator(testConfig(), gw, nil)
	sink := events.NewCollector()
	result, err := o.Run(context.Background(), runRequest(false), sink)
	require.NoError(t, err)

	msg := result.Message
	for _, j := range msg.Stage2 {
		assert.True(t, j.Partial)
	}
	assert.Empty(t, msg.Meta.Top1Consensus)
	assert.Nil(t, msg.Meta.Adjudication, "undefined consensus never adjudicates")

	// Stage 3 still runs against the default base label A.
	assert.False(t, msg.Stage3.Empty())
	assert.Equal(t, "A", msg.Stage3.BaseLabel)

	var kinds []string
	for _, e := range msg.Meta.Errors {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, "consensus_undefined")
}

func TestRun_AdjudicationOnWeakConsensus(t *testing.T) {
	gw := unanimousGateway()
	// Two judges pick A, two pick B: top1 support 0.5 triggers adjudication.
	gw.judge = map[string]string{
		"m1": judgeOutput("A", "B", "C", "D"),
		"m2": judgeOutput("A", "B", "C", "D"),
		"m3": judgeOutput("B", "A", "D", "C"),
		"m4": judgeOutput("B", "A", "C", "D"),
	}
	gw.adjudicator = judgeOutput("B", "A", "C", "D")

	o := NewOrchestrator(testConfig(), gw, nil)
	result, err := o.Run(context.Background(), runRequest(false), events.NewCollector())
	require.NoError(t, err)

	trace := result.Message.Meta
	require.NotNil(t, trace.Adjudication)
	assert.Equal(t, ReasonLowTop1Support, trace.Adjudication.TriggeredReason)
	assert.True(t, trace.Adjudication.Replaced)
	require.NotNil(t, trace.Adjudication.Result)
	assert.True(t, trace.Adjudication.Result.Adjudicator)
	assert.Equal(t, "B", trace.Top1Consensus)
	assert.Equal(t, "chair", trace.Adjudication.Result.Model, "adjudication falls back to the chairman model")
}

func TestRun_AdjudicatorPartialDoesNotOverride(t *testing.T) {
	gw := unanimousGateway()
	gw.judge = map[string]string{
		"m1": judgeOutput("A", "B", "C", "D"),
		"m2": judgeOutput("A", "B", "C", "D"),
		"m3": judgeOutput("B", "A", "D", "C"),
		"m4": judgeOutput("B", "A", "C", "D"),
	}
	gw.adjudicator = "I find them all equally compelling."

	o := NewOrchestrator(testConfig(), gw, nil)
	result, err := o.Run(context.Background(), runRequest(false), events.NewCollector())
	require.NoError(t, err)

	trace := result.Message.Meta
	require.NotNil(t, trace.Adjudication)
	assert.False(t, trace.Adjudication.Replaced)
	assert.Equal(t, "A", trace.Top1Consensus, "lexicographic tie-break stands")
}

func TestRun_ChairmanFailureLeavesStage3Empty(t *testing.T) {
	gw := unanimousGateway()
	gw.chairmanErr = llm.NewError(llm.ErrorKindPermanent, "chair", errors.New("refused"))

	o := NewOrchestrator(testConfig(), gw, nil)
	sink := events.NewCollector()
	result, err := o.Run(context.Background(), runRequest(false), sink)
	require.NoError(t, err)

	msg := result.Message
	assert.True(t, msg.Stage3.Empty())
	assert.Len(t, msg.Stage2, 4, "stage 2 output survives a stage 3 failure")

	types := sink.Types()
	assert.Contains(t, types, events.TypeStage3Complete)
	assert.Contains(t, types, events.TypeComplete)
}

func TestRun_TitleFallsBackToPromptDerivation(t *testing.T) {
	gw := unanimousGateway()
	gw.titleErr = llm.NewError(llm.ErrorKindTimeout, "chair", context.DeadlineExceeded)

	o := NewOrchestrator(testConfig(), gw, nil)
	result, err := o.Run(context.Background(), runRequest(true), events.NewCollector())
	require.NoError(t, err)

	assert.Equal(t, "What is the fastest way to detect duplicates", result.Title)
	assert.Empty(t, result.Message.Meta.Errors, "title failure is not a run error")
}

func TestRun_DisconnectAfterStage2StillPersists(t *testing.T) {
	st := &recordingStore{}
	o := NewOrchestrator(testConfig(), unanimousGateway(), st)
	sink := &failAfterSink{collector: events.NewCollector(), failAfter: events.TypeStage2Complete}

	result, err := o.Run(context.Background(), runRequest(false), sink)
	require.NoError(t, err)

	assert.Equal(t, []events.Type{
		events.TypeStage1Start,
		events.TypeStage1Complete,
		events.TypeStage2Start,
		events.TypeStage2Complete,
	}, sink.collector.Types(), "no stage3 events reach a disconnected client")

	require.Len(t, st.messages, 1, "the trace is persisted even after disconnect")
	msg := result.Message
	require.Len(t, msg.Stage2, 4)

	var kinds []string
	for _, e := range msg.Meta.Errors {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, "client_disconnected")
}

func TestRun_ContractStackRecordedInTrace(t *testing.T) {
	o := NewOrchestrator(testConfig(), unanimousGateway(), nil)

	req := runRequest(false)
	req.ContractIDs = []string{roles.ContractFactoryTruth, roles.ContractEldercareSafety}
	result, err := o.Run(context.Background(), req, events.NewCollector())
	require.NoError(t, err)

	assert.Equal(t, "factory_truth_v1,eldercare_safety_v1", result.Message.Meta.ContractStack)
}
