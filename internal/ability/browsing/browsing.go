// Package browsing lets the model read web pages and pick search results
// through a headless browser. Each action runs a short sub-conversation with
// its own tools; only the outcome reaches the flow.
package browsing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"buddy/internal/browser"
	"buddy/internal/capability"
	"buddy/internal/domain"
	"buddy/internal/model"
	"buddy/internal/tool"
)

const (
	Name        = "browsing"
	Description = "Browse the web for research tasks"

	noInformation = "No information found"
	noResults     = "No results found"

	// maxSearchTurns bounds the search sub-conversation when the model names
	// links that do not exist.
	maxSearchTurns = 3
)

// Browser is the part of browser.Bridge the capability uses.
type Browser interface {
	PageText(ctx context.Context, url string) (browser.Page, error)
	Search(ctx context.Context, query string) ([]browser.SearchResult, error)
}

const prompt = `# Web Browsing
You can research on the web. Use browsing_google_search_get_url to find the URL of a page that answers the task, then browsing_view_webpage_url to read it.
Give precise instructions describing the information you need; you only receive the notes taken while reading, never the page itself.
Never pass a URL as a search query.`

const readerPrompt = `You are viewing a webpage to look for information. You will be provided with instructions on what to do on the webpage.

Obey the following guidelines:
- Provide supporting information back to the user by using the add_note tool
- Upon fulfilling the instructions, stop reading the webpage using the stop_reading tool
- Your notes should be formatted as markdown text`

const searchPrompt = `You are performing a web search based on the instructions provided to you by the user. You will locate the first result that best matches these instructions and provide the URL back to the user.
You will be given the numbered search results, each with its title and URL.
When you have found a result that you believe matches the goal of the search, you will use your get_link_url tool to retrieve the URL for that result, which will then be returned to the user.
If no result matches, answer without calling a tool.`

var (
	viewWebpageTool = tool.MustMakeTool("view_webpage_url",
		"Opens a webpage URL to seek information using the instructions provided",
		tool.Args{"url": tool.T("string"), "instructions": tool.T("string")},
		[]string{"url", "instructions"})

	searchTool = tool.MustMakeTool("google_search_get_url",
		"Search Google for web results",
		tool.Args{
			"query":        {Type: "string", Description: "A search query. Do NOT use a URL for a search"},
			"instructions": tool.T("string"),
		},
		[]string{"query", "instructions"})

	addNoteTool     = tool.MustMakeTool("add_note", "Add a note to your findings", tool.Args{"note": tool.T("string")}, []string{"note"})
	stopReadingTool = tool.MustMakeTool("stop_reading", "Stop reading the webpage when you have found the information you need", tool.Args{}, nil)
	getLinkURLTool  = tool.MustMakeTool("get_link_url", "Retrieves the URL by using the title of the search result", tool.Args{"link_text": tool.T("string")}, []string{"link_text"})
)

type Config struct {
	Model     *model.Client
	Browser   Browser
	MaxChunks int // page text chunks read per page
	ChunkSize int // runes per chunk
	Logger    *slog.Logger
	// LookChrome finds a Chrome executable; browser.Available by default.
	LookChrome func() (string, error)
}

type Capability struct {
	model      *model.Client
	browser    Browser
	maxChunks  int
	chunkSize  int
	logger     *slog.Logger
	lookChrome func() (string, error)
}

func New(cfg Config) (*Capability, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("browsing: model client is required")
	}
	if cfg.Browser == nil {
		return nil, fmt.Errorf("browsing: browser is required")
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = 8
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = browser.DefaultChunkSize
	}
	if cfg.LookChrome == nil {
		cfg.LookChrome = browser.Available
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Capability{
		model:      cfg.Model,
		browser:    cfg.Browser,
		maxChunks:  cfg.MaxChunks,
		chunkSize:  cfg.ChunkSize,
		logger:     cfg.Logger.With("capability", Name),
		lookChrome: cfg.LookChrome,
	}, nil
}

// Registration wires the capability to the registry environment.
func Registration() capability.Registration {
	return capability.Registration{
		Name:        Name,
		Description: Description,
		New: func(env capability.Env) (domain.Capability, error) {
			bc := env.Config.Browser
			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir:  bc.ProfileDir,
				Headless:    bc.Headless,
				PageTimeout: time.Duration(bc.PageTimeoutSeconds) * time.Second,
				SearchURL:   bc.SearchURL,
				Logger:      env.Logger,
			})
			return New(Config{Model: env.Model, Browser: bridge, MaxChunks: bc.MaxChunks, Logger: env.Logger})
		},
	}
}

func (c *Capability) Name() string        { return Name }
func (c *Capability) Description() string { return Description }
func (c *Capability) Prompt() string      { return prompt }

func (c *Capability) Actions() []domain.Action {
	return []domain.Action{
		{Definition: viewWebpageTool, Handler: c.viewWebpage},
		{Definition: searchTool, Handler: c.search},
	}
}

// Enable reports whether a Chrome executable is available.
func (c *Capability) Enable(_ context.Context, _ map[string]string) bool {
	path, err := c.lookChrome()
	if err != nil {
		c.logger.Warn("browsing needs Google Chrome or Chromium on PATH", "err", err)
		return false
	}
	c.logger.Debug("chrome found", "path", path)
	return true
}

func (c *Capability) Disable(context.Context) {}

// --- view_webpage_url ---

func (c *Capability) viewWebpage(ctx context.Context, args map[string]any) (string, error) {
	url := tool.ArgsString(args, "url")
	instructions := tool.ArgsString(args, "instructions")
	c.logger.Info("opening webpage", "url", url, "instructions", instructions)

	page, err := c.browser.PageText(ctx, url)
	if err != nil {
		return "", err
	}
	chunks := browser.Chunk(page.Text, c.chunkSize)
	if len(chunks) > c.maxChunks {
		chunks = chunks[:c.maxChunks]
	}

	t := model.NewTranscript(
		domain.Message{Role: domain.RoleSystem, Content: readerPrompt},
		domain.Message{Role: domain.RoleUser, Content: instructions},
	)
	tools := []domain.ToolDefinition{addNoteTool, stopReadingTool}

	var notes []string
	for i, chunk := range chunks {
		t.Append(domain.Message{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("Page %s (%s), part %d of %d:\n\n%s", page.URL, page.Title, i+1, len(chunks), chunk),
		})
		resp, err := c.model.RunInference(ctx, t, tools, 0, false)
		if err != nil {
			return "", err
		}

		stop := false
		t.Reply(resp, func(call domain.ToolCall) string {
			switch call.Name {
			case addNoteTool.Name:
				if note := strings.TrimSpace(tool.ArgsString(call.Arguments, "note")); note != "" {
					notes = append(notes, note)
				}
				return "Success"
			case stopReadingTool.Name:
				stop = true
				return "Success"
			default:
				return fmt.Sprintf("No such tool '%s'", call.Name)
			}
		})
		if stop {
			break
		}
		if i < len(chunks)-1 {
			c.logger.Debug("reading further", "part", i+2, "of", len(chunks))
		}
	}

	c.logger.Debug("finished reading the webpage", "notes", len(notes))
	if len(notes) == 0 {
		return noInformation, nil
	}
	return strings.Join(notes, "\n\n"), nil
}

// --- google_search_get_url ---

func (c *Capability) search(ctx context.Context, args map[string]any) (string, error) {
	query := tool.ArgsString(args, "query")
	instructions := tool.ArgsString(args, "instructions")
	c.logger.Info("performing web search", "query", query, "instructions", instructions)

	results, err := c.browser.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return noResults, nil
	}

	t := model.NewTranscript(
		domain.Message{Role: domain.RoleSystem, Content: searchPrompt},
		domain.Message{Role: domain.RoleUser, Content: instructions},
		domain.Message{Role: domain.RoleUser, Content: formatResults(query, results)},
	)
	tools := []domain.ToolDefinition{getLinkURLTool}

	for turn := 0; turn < maxSearchTurns; turn++ {
		resp, err := c.model.RunInference(ctx, t, tools, 0, false)
		if err != nil {
			return "", err
		}
		if !resp.HasToolCalls() {
			break
		}

		var found string
		t.Reply(resp, func(call domain.ToolCall) string {
			if call.Name != getLinkURLTool.Name {
				return fmt.Sprintf("No such tool '%s'", call.Name)
			}
			if found != "" {
				return found
			}
			if u, ok := matchLink(results, tool.ArgsString(call.Arguments, "link_text")); ok {
				found = u
				return u
			}
			return "No search result has that title. Use the exact title of one of the listed results."
		})
		if found != "" {
			return found, nil
		}
	}
	return noResults, nil
}

func formatResults(query string, results []browser.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
	}
	return b.String()
}

// matchLink finds the first result whose title contains text, ignoring case.
// A result number ("2" or "2.") also selects that result.
func matchLink(results []browser.SearchResult, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(text, ".")); err == nil && n >= 1 && n <= len(results) {
		return results[n-1].URL, true
	}
	lower := strings.ToLower(text)
	for _, r := range results {
		if strings.Contains(strings.ToLower(r.Title), lower) {
			return r.URL, true
		}
	}
	return "", false
}
