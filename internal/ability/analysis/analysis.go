// Package analysis answers questions about local files. Structured files are
// loaded into an in-memory SQLite table that an expert sub-conversation
// queries; plain text files are read directly.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"buddy/internal/capability"
	"buddy/internal/domain"
	"buddy/internal/model"
	"buddy/internal/tool"
)

const (
	Name        = "analysis"
	Description = "Analyze images, spreadsheets, and other files"

	// maxListing caps the directory entries shown when locating a file.
	maxListing = 200
	// maxLocateTurns bounds the locate sub-conversation.
	maxLocateTurns = 3
)

const prompt = `# File Analysis
You can inspect files on this machine without printing them to the terminal.
- When the user refers to a file without an absolute path, find it first with analysis_locate_file.
- Use analysis_analyze_file with the absolute path and detailed instructions describing exactly what you need to know. The expert only sees your instructions, not this conversation.
- Supported formats: JSON, YAML, CSV, XML and plain text (.txt, .md, .log).`

const locatePrompt = `You will select the name of the file that matches the query provided by the user by using the select_file tool.
If none of the files match the query, use the file_not_found tool.
Only select names that appear in the directory listing.`

var (
	locateFileTool = tool.MustMakeTool("locate_file",
		"Used to locate the absolute path to the file being referenced by the user",
		tool.Args{"file_name": {Type: "string", Description: "The assumed name of the file"}},
		[]string{"file_name"})

	analyzeFileTool = tool.MustMakeTool("analyze_file",
		"Request an expert to look at a file and derive information from it",
		tool.Args{
			"file_path":    {Type: "string", Description: "The absolute path to the file"},
			"instructions": {Type: "string", Description: "Detailed instructions to pass to the analysis expert"},
		},
		[]string{"file_path", "instructions"})

	selectFileTool = tool.MustMakeTool("select_file",
		"Select the file that matches the query",
		tool.Args{"file_name": {Type: "string", Description: "The name of the file exactly as listed"}},
		[]string{"file_name"})

	fileNotFoundTool = tool.MustMakeTool("file_not_found",
		"Report that no file in the listing matches the query", tool.Args{}, nil)
)

type Config struct {
	Model    *model.Client
	Operator domain.Operator // asked for a path when the model cannot find the file
	WorkDir  string          // directory searched by locate_file; current directory by default
	Logger   *slog.Logger
}

type Capability struct {
	model    *model.Client
	operator domain.Operator
	workDir  string
	logger   *slog.Logger
}

func New(cfg Config) (*Capability, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("analysis: model client is required")
	}
	if cfg.Operator == nil {
		return nil, fmt.Errorf("analysis: operator is required")
	}
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("analysis: working directory: %w", err)
		}
		cfg.WorkDir = wd
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Capability{
		model:    cfg.Model,
		operator: cfg.Operator,
		workDir:  cfg.WorkDir,
		logger:   cfg.Logger.With("capability", Name),
	}, nil
}

// Registration wires the capability to the registry environment.
func Registration() capability.Registration {
	return capability.Registration{
		Name:        Name,
		Description: Description,
		New: func(env capability.Env) (domain.Capability, error) {
			return New(Config{Model: env.Model, Operator: env.Operator, Logger: env.Logger})
		},
	}
}

func (c *Capability) Name() string        { return Name }
func (c *Capability) Description() string { return Description }
func (c *Capability) Prompt() string      { return prompt }

func (c *Capability) Actions() []domain.Action {
	return []domain.Action{
		{Definition: locateFileTool, Handler: c.locateFile},
		{Definition: analyzeFileTool, Handler: c.analyzeFile},
	}
}

// Enable needs no setup; the SQLite engine is linked in.
func (c *Capability) Enable(context.Context, map[string]string) bool { return true }

func (c *Capability) Disable(context.Context) {}

// --- locate_file ---

func (c *Capability) locateFile(ctx context.Context, args map[string]any) (string, error) {
	name := strings.TrimSpace(tool.ArgsString(args, "file_name"))
	if name == "" {
		return "", fmt.Errorf("file_name is required")
	}
	c.logger.Info("locating file", "name", name)

	if p, ok := c.existing(name); ok {
		return p, nil
	}

	listing, err := c.listing()
	if err != nil {
		c.logger.Warn("failed to list working directory", "dir", c.workDir, "err", err)
	}
	if len(listing) > 0 {
		selected, err := c.selectFile(ctx, name, listing)
		if err != nil {
			return "", err
		}
		if selected != "" {
			return selected, nil
		}
	}
	return c.askOperator(ctx, name)
}

// existing resolves name against the working directory and reports whether
// it names a file.
func (c *Capability) existing(name string) (string, bool) {
	p := name
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.workDir, p)
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return filepath.Clean(p), true
}

// listing returns the files under the working directory, two levels deep,
// as slash-separated relative paths.
func (c *Capability) listing() ([]string, error) {
	var files []string
	err := filepath.WalkDir(c.workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(c.workDir, path)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || strings.Count(rel, string(filepath.Separator)) >= 1 {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		if len(files) >= maxListing {
			return filepath.SkipAll
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func (c *Capability) selectFile(ctx context.Context, query string, files []string) (string, error) {
	t := model.NewTranscript(
		domain.Message{Role: domain.RoleSystem, Content: locatePrompt},
		domain.Message{Role: domain.RoleAssistant, Content: "The current directory contains the following files:\n" + strings.Join(files, "\n")},
		domain.Message{Role: domain.RoleUser, Content: query},
	)
	tools := []domain.ToolDefinition{selectFileTool, fileNotFoundTool}

	for turn := 0; turn < maxLocateTurns; turn++ {
		resp, err := c.model.RunInference(ctx, t, tools, 0, true)
		if err != nil {
			return "", err
		}

		var found string
		notFound := false
		t.Reply(resp, func(call domain.ToolCall) string {
			switch call.Name {
			case selectFileTool.Name:
				name := strings.TrimSpace(tool.ArgsString(call.Arguments, "file_name"))
				for _, f := range files {
					if f == name || filepath.Base(f) == name {
						if p, ok := c.existing(f); ok {
							found = p
							return p
						}
					}
				}
				return fmt.Sprintf("There is no file named '%s' in the listing.", name)
			case fileNotFoundTool.Name:
				notFound = true
				return "Success"
			default:
				return fmt.Sprintf("No such tool '%s'", call.Name)
			}
		})
		if found != "" {
			c.logger.Debug("file selected", "path", found)
			return found, nil
		}
		if notFound {
			return "", nil
		}
	}
	return "", nil
}

func (c *Capability) askOperator(ctx context.Context, name string) (string, error) {
	reply, err := c.operator.Ask(ctx, fmt.Sprintf("Could not locate the file %s. Please provide the absolute path to the file.\nFile path:", name))
	if err != nil {
		return "", err
	}
	reply = strings.Trim(strings.TrimSpace(reply), `"'`)
	if p, ok := c.existing(reply); ok && reply != "" {
		return p, nil
	}
	return fmt.Sprintf("Could not locate the file at the path %s.", reply), nil
}

// --- analyze_file ---

func (c *Capability) analyzeFile(ctx context.Context, args map[string]any) (string, error) {
	path := strings.TrimSpace(tool.ArgsString(args, "file_path"))
	instructions := tool.ArgsString(args, "instructions")
	c.logger.Info("analyzing file", "path", path, "instructions", instructions)

	resolved, ok := c.existing(path)
	if path == "" || !ok {
		return fmt.Sprintf("I'm sorry, I couldn't find the file %s. You should use the locate_file tool to find the file first.", path), nil
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	switch ext {
	case ".json", ".yaml", ".yml", ".csv", ".xml":
		recs, err := loadRecords(resolved, ext)
		if err != nil {
			return "", err
		}
		ds, err := newDataset(ctx, recs)
		if err != nil {
			return "", err
		}
		defer ds.Close()
		return c.queryExpert(ctx, ds, instructions)
	case ".txt", ".md", ".log":
		return c.textExpert(ctx, resolved, instructions)
	}
	return "I'm sorry, I don't know how to analyze that file type. It's unsupported.", nil
}
