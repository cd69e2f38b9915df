package flow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"buddy/internal/domain"
	"buddy/internal/model"
	"buddy/internal/model/modeltest"
	"buddy/internal/terminal/terminaltest"
	"buddy/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRunner struct {
	mu     sync.Mutex
	ran    []string
	result tool.CommandResult
	err    error
}

func (r *fakeRunner) Run(_ context.Context, command string, _ bool) (tool.CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, command)
	res := r.result
	res.Duration = time.Millisecond
	return res, r.err
}

type memRuns struct {
	started  []domain.RunRecord
	finished []domain.RunRecord
}

func (m *memRuns) StartRun(_ context.Context, r domain.RunRecord) error {
	m.started = append(m.started, r)
	return nil
}

func (m *memRuns) FinishRun(_ context.Context, r domain.RunRecord) error {
	m.finished = append(m.finished, r)
	return nil
}

func (m *memRuns) ListRuns(context.Context, int) ([]domain.RunRecord, error) { return nil, nil }
func (m *memRuns) Close() error                                                { return nil }

type harness struct {
	provider *modeltest.Provider
	console  *terminaltest.Console
	runner   *fakeRunner
	client   *model.Client
}

func newHarness(t *testing.T, steps []modeltest.Step, replies ...string) *harness {
	t.Helper()
	p := modeltest.NewProvider(steps...)
	c, err := model.New(model.Config{Provider: p, Model: "main", SummaryModel: "cheap", Logger: testLogger()})
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	return &harness{
		provider: p,
		console:  terminaltest.NewConsole(replies...),
		runner:   &fakeRunner{},
		client:   c,
	}
}

func (h *harness) flow(t *testing.T, v Variant, caps ...domain.Capability) *Flow {
	t.Helper()
	f, err := New(Config{
		Variant:       v,
		Model:         h.client,
		Capabilities:  caps,
		Console:       h.console,
		Runner:        h.runner,
		SystemContext: func(context.Context) string { return "linux test box" },
		Logger:        testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func endOK(id string) modeltest.Step {
	return modeltest.Reply(id, toolEndProcess, map[string]any{"success": true, "summary": "done"})
}

// toolResults returns the tool messages of req after the last assistant
// message.
func toolResults(req domain.ChatRequest) []domain.Message {
	var out []domain.Message
	for i := len(req.Messages) - 1; i >= 0; i-- {
		m := req.Messages[i]
		if m.Role != domain.RoleTool {
			break
		}
		out = append([]domain.Message{m}, out...)
	}
	return out
}

type noteCapability struct {
	notes []string
}

func (c *noteCapability) Name() string        { return "notes" }
func (c *noteCapability) Description() string { return "Keeps notes" }
func (c *noteCapability) Prompt() string      { return "Use notes_add to remember things." }
func (c *noteCapability) Enable(context.Context, map[string]string) bool {
	return true
}
func (c *noteCapability) Disable(context.Context) {}
func (c *noteCapability) Actions() []domain.Action {
	return []domain.Action{{
		Definition: tool.MustMakeTool("add", "Add a note", tool.Args{"text": tool.T("string")}, []string{"text"}),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			text := tool.ArgsString(args, "text")
			switch text {
			case "boom":
				return "", errors.New("disk full")
			case "unauthorized":
				return "", &domain.ProviderError{Kind: domain.KindAuth, Provider: "scripted", Message: "bad key"}
			}
			c.notes = append(c.notes, text)
			return "", nil
		},
	}}
}

// --- Scenarios ---

func TestUnsupervisedRunsWithoutPrompt(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", toolExecuteCommand, map[string]any{"command": "ls /tmp"}),
		endOK("c2"),
	})
	h.runner.result = tool.CommandResult{Stdout: "a.txt\nb.txt\n"}

	res, err := h.flow(t, Unsupervised).Execute(context.Background(), "list files in /tmp")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != Succeeded || res.Iterations != 2 || res.Summary != "done" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if diff := cmp.Diff([]string{"ls /tmp"}, h.runner.ran); diff != "" {
		t.Fatalf("commands run (-want +got):\n%s", diff)
	}
	if len(h.console.Asked) != 0 {
		t.Fatalf("unexpected prompts: %v", h.console.Asked)
	}
	// Two flow turns and no summarization call.
	if h.provider.Calls() != 2 {
		t.Fatalf("expected 2 provider calls, got %d", h.provider.Calls())
	}
	if m := h.client.Metrics(); m.Turns.Value() != 2 || m.TranscriptMessages.Value() != int64(len(h.provider.LastRequest().Messages)) {
		t.Fatalf("turn gauges: turns=%d messages=%d", m.Turns.Value(), m.TranscriptMessages.Value())
	}
	results := toolResults(h.provider.LastRequest())
	want := "Execution complete\n\n### Stdout Summary\na.txt\nb.txt\n\n\n### Stderr Summary\n"
	if len(results) != 1 || results[0].Content != want {
		t.Fatalf("unexpected tool result: %+v", results)
	}
}

func TestSupervisedDenialNeverRuns(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", toolExecuteCommand, map[string]any{"command": "rm -rf /data", "dangerous": true}),
		endOK("c2"),
	}, "no", "too risky")

	if _, err := h.flow(t, Supervised).Execute(context.Background(), "clean up"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(h.runner.ran) != 0 {
		t.Fatalf("denied command ran: %v", h.runner.ran)
	}
	results := toolResults(h.provider.LastRequest())
	if len(results) != 1 || results[0].Content != "Command execution denied by user with reasoning: too risky" {
		t.Fatalf("unexpected tool result: %+v", results)
	}
}

func TestUnrecoverableResolutionFails(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", toolProvideResolution, map[string]any{"resolution": "cannot proceed", "recoverable": false}),
	})

	res, err := h.flow(t, Educational).Execute(context.Background(), "install nginx")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != Failed || res.Summary != "cannot proceed" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if h.provider.Calls() != 1 {
		t.Fatalf("expected no further inference, got %d calls", h.provider.Calls())
	}
	if got := h.console.Notices[len(h.console.Notices)-1]; got != "error: Task failed" {
		t.Fatalf("last notice = %q", got)
	}
}

func TestUnknownAbilityContinues(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", "foo_bar", nil),
		endOK("c2"),
	})

	res, err := h.flow(t, Unsupervised).Execute(context.Background(), "do it")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != Succeeded || res.Iterations != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	results := toolResults(h.provider.LastRequest())
	if len(results) != 1 || results[0].Content != resultNoAbility {
		t.Fatalf("unexpected tool result: %+v", results)
	}
}

func TestUnknownToolContinues(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", "dance", nil),
		endOK("c2"),
	})

	if _, err := h.flow(t, Unsupervised).Execute(context.Background(), "do it"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	results := toolResults(h.provider.LastRequest())
	if len(results) != 1 || results[0].Content != "No such tool 'dance'" {
		t.Fatalf("unexpected tool result: %+v", results)
	}
}

// --- Tool-call closure ---

func TestEveryCallAnswered(t *testing.T) {
	multi := modeltest.Step{Resp: &domain.ChatResponse{ToolCalls: []domain.ToolCall{
		{ID: "a", Name: toolExecuteCommand, Arguments: map[string]any{"command": "uname"}},
		{ID: "b", Name: "nope", Arguments: map[string]any{}},
		{ID: "c", Name: toolExecuteCommand, Arguments: map[string]any{}},
	}}}
	h := newHarness(t, []modeltest.Step{multi, endOK("d")})

	if _, err := h.flow(t, Unsupervised).Execute(context.Background(), "what os"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	results := toolResults(h.provider.LastRequest())
	var ids []string
	for _, m := range results {
		ids = append(ids, m.ToolCallID)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Fatalf("tool result ids (-want +got):\n%s", diff)
	}
	if results[2].Content != "Missing required argument: command" {
		t.Fatalf("unexpected result for missing command: %q", results[2].Content)
	}
}

func TestTerminalCallStillAnswersSiblings(t *testing.T) {
	runs := &memRuns{}
	h := newHarness(t, []modeltest.Step{{Resp: &domain.ChatResponse{ToolCalls: []domain.ToolCall{
		{ID: "a", Name: toolEndProcess, Arguments: map[string]any{"success": true, "summary": "ok"}},
		{ID: "b", Name: toolExecuteCommand, Arguments: map[string]any{"command": "true"}},
	}}}})
	f, err := New(Config{
		Variant: Unsupervised, Model: h.client, Console: h.console, Runner: h.runner,
		SystemContext: func(context.Context) string { return "" },
		Runs:          runs, RunID: "run-1", Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := f.Execute(context.Background(), "x")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != Succeeded || res.Summary != "ok" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(h.runner.ran) != 1 {
		t.Fatalf("sibling call not dispatched: %v", h.runner.ran)
	}
	if len(runs.finished) != 1 || runs.finished[0].Status != domain.RunSucceeded || runs.finished[0].Iterations != 1 {
		t.Fatalf("unexpected run record: %+v", runs.finished)
	}
}

// --- Supervision through the flow ---

func TestSupervisedGating(t *testing.T) {
	tests := []struct {
		name      string
		variant   Variant
		dangerous bool
		replies   []string
		wantRun   bool
		wantAsked int
	}{
		{"supervised dangerous approved", Supervised, true, []string{"yes"}, true, 1},
		{"supervised dangerous unclear then approved", Supervised, true, []string{"maybe", "y"}, true, 2},
		{"supervised safe", Supervised, false, nil, true, 0},
		{"unsupervised dangerous", Unsupervised, true, nil, true, 0},
		{"supervised dangerous denied", Supervised, true, []string{"n", "no thanks"}, false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []modeltest.Step{
				modeltest.Reply("c1", toolExecuteCommand, map[string]any{"command": "touch /tmp/x", "dangerous": tt.dangerous}),
				endOK("c2"),
			}, tt.replies...)

			if _, err := h.flow(t, tt.variant).Execute(context.Background(), "touch"); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got := len(h.runner.ran) == 1; got != tt.wantRun {
				t.Fatalf("ran = %v, want %v", got, tt.wantRun)
			}
			if len(h.console.Asked) != tt.wantAsked {
				t.Fatalf("asked %v", h.console.Asked)
			}
		})
	}
}

func TestOperatorInputErrorAborts(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", toolExecuteCommand, map[string]any{"command": "rm x", "dangerous": true}),
	})

	_, err := h.flow(t, Supervised).Execute(context.Background(), "rm")
	if !errors.Is(err, terminaltest.ErrNoReply) {
		t.Fatalf("expected ErrNoReply, got %v", err)
	}
	if len(h.runner.ran) != 0 {
		t.Fatalf("command ran: %v", h.runner.ran)
	}
}

// --- Educational tools ---

func TestEducationalPlanAndCommand(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", toolProvidePlan, map[string]any{"plan": "1. Look"}),
		modeltest.Reply("c2", toolProvideCommand, map[string]any{"command": "ls", "require_sudo": false}),
		modeltest.Reply("c3", toolProvideCommand, map[string]any{"command": "rm -rf /", "require_sudo": true}),
		modeltest.Reply("c4", toolProvideCommand, map[string]any{"command": "ls -l", "require_sudo": false}),
		endOK("c5"),
	}, "y", "yes", "no", "why -l?")

	if _, err := h.flow(t, Educational).Execute(context.Background(), "look around"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	reqs := h.provider.Requests()
	got := []string{
		toolResults(reqs[1])[0].Content,
		toolResults(reqs[2])[0].Content,
		toolResults(reqs[3])[0].Content,
		toolResults(reqs[4])[0].Content,
	}
	want := []string{planApproved, commandApproved, commandDenied, "why -l?"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("results (-want +got):\n%s", diff)
	}
	if len(h.console.Panels) == 0 || h.console.Panels[0].Title != "Plan" {
		t.Fatalf("plan not shown: %+v", h.console.Panels)
	}
	if !containsNotice(h.console.Notices, "warn: This command requires sudo") {
		t.Fatalf("sudo warning missing: %v", h.console.Notices)
	}
}

func TestRecoverableResolutionContinues(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", toolProvideResolution, map[string]any{"resolution": "retry with sudo", "recoverable": true}),
		modeltest.Reply("c2", toolProvideResolution, map[string]any{"resolution": "try again"}),
		endOK("c3"),
	})

	res, err := h.flow(t, Educational).Execute(context.Background(), "fix it")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != Succeeded || res.Iterations != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestEndProcessRendering(t *testing.T) {
	tests := []struct {
		name       string
		args       map[string]any
		wantStatus Status
		wantPanel  string
	}{
		{"summary and details", map[string]any{"success": true, "summary": "S", "details": "D"}, Succeeded, "### Summary\nS\n\n### Details\nD"},
		{"summary only", map[string]any{"success": false, "summary": "S"}, Failed, "S"},
		{"missing success", map[string]any{"details": "D"}, Failed, "D"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []modeltest.Step{modeltest.Reply("c1", toolEndProcess, tt.args)})
			res, err := h.flow(t, Unsupervised).Execute(context.Background(), "x")
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Status != tt.wantStatus {
				t.Fatalf("status = %v, want %v", res.Status, tt.wantStatus)
			}
			if len(h.console.Panels) != 1 || h.console.Panels[0].Markdown != tt.wantPanel {
				t.Fatalf("panels = %+v", h.console.Panels)
			}
		})
	}
}

// --- Capabilities ---

func TestCapabilityActionDispatch(t *testing.T) {
	notes := &noteCapability{}
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", "notes_add", map[string]any{"text": "first"}),
		modeltest.Reply("c2", "add", map[string]any{"text": "bare"}),
		modeltest.Reply("c3", "notes_add", map[string]any{"text": "boom"}),
		modeltest.Reply("c4", "notes_remove", nil),
		endOK("c5"),
	})
	f := h.flow(t, Unsupervised, notes)

	if _, err := f.Execute(context.Background(), "remember"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff([]string{"first", "bare"}, notes.notes); diff != "" {
		t.Fatalf("notes (-want +got):\n%s", diff)
	}
	reqs := h.provider.Requests()
	got := []string{
		toolResults(reqs[1])[0].Content,
		toolResults(reqs[2])[0].Content,
		toolResults(reqs[3])[0].Content,
		toolResults(reqs[4])[0].Content,
	}
	want := []string{"Success", "Success", "Error: disk full", "No such tool 'notes_remove'"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("results (-want +got):\n%s", diff)
	}
	if !containsNotice(h.console.Notices, "info: Using the notes ability...") {
		t.Fatalf("ability notice missing: %v", h.console.Notices)
	}
	if !strings.HasSuffix(reqs[0].Messages[0].Content, "Use notes_add to remember things.") {
		t.Fatalf("capability prompt missing from system prompt")
	}
}

func TestCapabilityProviderErrorAborts(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", "notes_add", map[string]any{"text": "unauthorized"}),
	})
	f := h.flow(t, Unsupervised, &noteCapability{})

	_, err := f.Execute(context.Background(), "remember")
	var perr *domain.ProviderError
	if !errors.As(err, &perr) || perr.Kind != domain.KindAuth {
		t.Fatalf("expected provider error, got %v", err)
	}
	if h.provider.Calls() != 1 {
		t.Fatalf("flow continued after a provider error: %d calls", h.provider.Calls())
	}
}

func TestToolsOffered(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		variant Variant
		want    []string
	}{
		{Unsupervised, []string{"notes_add", toolExecuteCommand, toolEndProcess}},
		{Supervised, []string{"notes_add", toolExecuteCommand, toolEndProcess}},
		{Educational, []string{"notes_add", toolProvidePlan, toolProvideExplanation, toolProvideResolution, toolProvideCommand, toolExecuteCommand, toolEndProcess}},
		{Explain, []string{"notes_add", toolProvideExplanation, toolEndProcess}},
	}
	for _, tt := range tests {
		t.Run(tt.variant.String(), func(t *testing.T) {
			f := h.flow(t, tt.variant, &noteCapability{})
			var names []string
			for _, d := range f.Tools() {
				names = append(names, d.Name)
			}
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Fatalf("tools (-want +got):\n%s", diff)
			}
		})
	}

	sup := h.flow(t, Supervised)
	if !slices.Contains(tool.RequiredOf(sup.Tools()[0]), "dangerous") {
		t.Fatal("supervised execute_command lacks dangerous")
	}
	unsup := h.flow(t, Unsupervised)
	if slices.Contains(tool.PropertiesOf(unsup.Tools()[0]), "dangerous") {
		t.Fatal("unsupervised execute_command has dangerous")
	}
}

func TestNewRejectsDuplicateCapability(t *testing.T) {
	h := newHarness(t, nil)
	_, err := New(Config{
		Variant: Unsupervised, Model: h.client, Console: h.console, Runner: h.runner,
		Capabilities: []domain.Capability{&noteCapability{}, &noteCapability{}},
	})
	if err == nil {
		t.Fatal("expected duplicate capability error")
	}
}

func TestNewRequiresRunner(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := New(Config{Variant: Unsupervised, Model: h.client, Console: h.console}); err == nil {
		t.Fatal("expected error without runner")
	}
	if _, err := New(Config{Variant: Explain, Model: h.client, Console: h.console, Logger: testLogger()}); err != nil {
		t.Fatalf("explain flow without runner: %v", err)
	}
}

// --- Loop control ---

func TestFreeTextNudged(t *testing.T) {
	h := newHarness(t, []modeltest.Step{modeltest.Text("I think I should list files"), endOK("c1")})

	res, err := h.flow(t, Unsupervised).Execute(context.Background(), "x")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Iterations != 2 {
		t.Fatalf("iterations = %d", res.Iterations)
	}
	msgs := h.provider.LastRequest().Messages
	if last := msgs[len(msgs)-1]; last.Role != domain.RoleUser || last.Content != freeTextNudge {
		t.Fatalf("expected nudge, got %+v", last)
	}
}

func TestIterationLimit(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", toolExecuteCommand, map[string]any{"command": "true"}),
		modeltest.Reply("c2", toolExecuteCommand, map[string]any{"command": "true"}),
	})
	f, err := New(Config{
		Variant: Unsupervised, Model: h.client, Console: h.console, Runner: h.runner,
		SystemContext: func(context.Context) string { return "" }, MaxIterations: 2, Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := f.Execute(context.Background(), "loop"); !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("expected ErrIterationLimit, got %v", err)
	}
}

func TestExecuteOnce(t *testing.T) {
	h := newHarness(t, []modeltest.Step{endOK("c1")})
	f := h.flow(t, Unsupervised)
	if _, err := f.Execute(context.Background(), "x"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := f.Execute(context.Background(), "x"); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("expected ErrAlreadyExecuted, got %v", err)
	}
}

func TestInferenceErrorRecorded(t *testing.T) {
	runs := &memRuns{}
	h := newHarness(t, []modeltest.Step{modeltest.Fail(errors.New("network down"))})
	f, err := New(Config{
		Variant: Unsupervised, Model: h.client, Console: h.console, Runner: h.runner,
		SystemContext: func(context.Context) string { return "" }, Runs: runs, RunID: "r", Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := f.Execute(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(runs.started) != 1 || len(runs.finished) != 1 {
		t.Fatalf("run record not written: %+v %+v", runs.started, runs.finished)
	}
	if rec := runs.finished[0]; rec.Status != domain.RunError || !strings.Contains(rec.Error, "network down") {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestLongOutputSummarized(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", toolExecuteCommand, map[string]any{"command": "dmesg"}),
		modeltest.Text("  kernel booted  "),
		endOK("c2"),
	})
	h.runner.result = tool.CommandResult{Stdout: strings.Repeat("x", 1001), Stderr: "warn"}

	if _, err := h.flow(t, Unsupervised).Execute(context.Background(), "logs"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	reqs := h.provider.Requests()
	if reqs[1].Model != "cheap" {
		t.Fatalf("summary request used model %q", reqs[1].Model)
	}
	want := "Execution complete\n\n### Stdout Summary\nkernel booted\n\n### Stderr Summary\nwarn"
	if got := toolResults(reqs[2])[0].Content; got != want {
		t.Fatalf("result = %q", got)
	}
}

// --- Variant selection and prompts ---

func TestSelect(t *testing.T) {
	tests := []struct {
		args        []string
		wantVariant Variant
		wantTask    string
	}{
		{[]string{"list", "files"}, Unsupervised, "list files"},
		{[]string{"teach", "me", "git", "rebase"}, Educational, "git rebase"},
		{[]string{"Show", "Me", "disk", "usage"}, Educational, "disk usage"},
		{[]string{"help", "install", "go"}, Educational, "install go"},
		{[]string{"carefully", "delete", "logs"}, Supervised, "delete logs"},
		{[]string{"explain", "tar", "-xzf"}, Explain, "tar -xzf"},
		{[]string{"help"}, Unsupervised, "help"},
		{[]string{"teach", "me"}, Unsupervised, "teach me"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			v, task := Select(tt.args)
			if v != tt.wantVariant || task != tt.wantTask {
				t.Fatalf("Select = (%v, %q), want (%v, %q)", v, task, tt.wantVariant, tt.wantTask)
			}
		})
	}
}

func TestParseVariant(t *testing.T) {
	for _, v := range []Variant{Unsupervised, Supervised, Educational, Explain} {
		got, err := ParseVariant(v.String())
		if err != nil || got != v {
			t.Fatalf("ParseVariant(%q) = %v, %v", v.String(), got, err)
		}
	}
	if _, err := ParseVariant("chaotic"); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestSystemPrompt(t *testing.T) {
	if got := SystemPrompt(Unsupervised, nil); got != unsupervisedPrompt {
		t.Fatal("prompt without fragments should be the base prompt")
	}
	got := SystemPrompt(Supervised, []string{"  one ", "", "two"})
	if got != supervisedPrompt+"\n\none\ntwo" {
		t.Fatalf("unexpected prompt suffix: %q", got[len(supervisedPrompt):])
	}
}

func TestExplainSeedsUserPrompt(t *testing.T) {
	h := newHarness(t, []modeltest.Step{
		modeltest.Reply("c1", toolProvideExplanation, map[string]any{"title": "tar", "explanation": "extracts"}),
		endOK("c2"),
	})
	f, err := New(Config{Variant: Explain, Model: h.client, Console: h.console, SystemContext: func(context.Context) string { return "mac" }, Logger: testLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := f.Execute(context.Background(), "tar -xzf a.tgz"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	first := h.provider.Requests()[0].Messages
	if len(first) != 3 {
		t.Fatalf("expected 3 seed messages, got %d", len(first))
	}
	if first[1].Content != "My system information: mac" || first[2].Content != "Explain this command: tar -xzf a.tgz" {
		t.Fatalf("unexpected seed: %+v", first[1:])
	}
	if h.console.Panels[0].Title != "tar" {
		t.Fatalf("panels = %+v", h.console.Panels)
	}
}

func containsNotice(notices []string, want string) bool {
	return slices.Contains(notices, want)
}
