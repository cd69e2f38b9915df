package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"buddy/internal/domain"
	"buddy/internal/model"
	"buddy/internal/tool"
)

const (
	expertTemperature = 0.1

	// maxFailedQueries is how many broken queries the expert may send.
	maxFailedQueries = 3
	// maxExpertTurns bounds the conversation even when every query works.
	maxExpertTurns = 10
	// maxRows limits rows rendered per query result.
	maxRows = 50
	// maxPreview limits the runes of a text file shown to the expert.
	maxPreview = 20000

	useAnswerTool = "\n\nUse the provide_answer tool to provide your answer."
	expertFailed  = "I failed to find the information due to the complexity of the query. Please try again with a simpler query."
)

const queryPrompt = `You are a data analysis expert. The user's file has been loaded into a SQLite table named "data".
%s

Answer the user's instructions:
- Use the set_sql_query tool to run a SQLite SELECT query against the "data" table. You will receive the result rows.
- Nested fields are columns whose names contain "." and must be double-quoted, for example "address.city".
- When you have the information, use the provide_answer tool. Format the answer as markdown.`

const textPrompt = `You are a document analysis expert. You will be given the contents of a file and instructions from the user.
Use the provide_answer tool to answer the instructions from the contents. Format the answer as markdown.`

var (
	setSQLQueryTool = tool.MustMakeTool("set_sql_query",
		"Run a SQLite query against the data table",
		tool.Args{"query": {Type: "string", Description: "A SQLite SELECT statement"}},
		[]string{"query"})

	provideAnswerTool = tool.MustMakeTool("provide_answer",
		"Provide the answer to the instructions",
		tool.Args{"answer": tool.T("string")},
		[]string{"answer"})
)

func brokenQuery(err error) string {
	return fmt.Sprintf("The SQL query you provided is not functional.\nThe error message is: %s\nPlease provide a query that matches the schema of the 'data' table and the instructions.", err)
}

// queryExpert lets the model query ds until it provides an answer.
func (c *Capability) queryExpert(ctx context.Context, ds *Dataset, instructions string) (string, error) {
	t := model.NewTranscript(
		domain.Message{Role: domain.RoleSystem, Content: fmt.Sprintf(queryPrompt, ds.Schema())},
		domain.Message{Role: domain.RoleUser, Content: instructions},
	)
	tools := []domain.ToolDefinition{setSQLQueryTool, provideAnswerTool}

	failed := 0
	for turn := 0; turn < maxExpertTurns && failed < maxFailedQueries; turn++ {
		resp, err := c.model.RunInference(ctx, t, tools, expertTemperature, true)
		if err != nil {
			return "", err
		}

		var answer string
		t.Reply(resp, func(call domain.ToolCall) string {
			switch call.Name {
			case provideAnswerTool.Name:
				answer = strings.TrimSpace(tool.ArgsString(call.Arguments, "answer"))
				return "Success"
			case setSQLQueryTool.Name:
				query := tool.ArgsString(call.Arguments, "query")
				c.logger.Debug("expert query", "query", query)
				table, err := ds.Query(ctx, query, maxRows)
				if err != nil {
					failed++
					c.logger.Debug("expert query failed", "err", err, "failed", failed)
					return brokenQuery(err)
				}
				return table + useAnswerTool
			default:
				return fmt.Sprintf("No such tool '%s'", call.Name)
			}
		})
		if answer != "" {
			return answer, nil
		}
		if !resp.HasToolCalls() {
			t.Append(domain.Message{Role: domain.RoleUser, Content: strings.TrimSpace(useAnswerTool)})
		}
	}
	c.logger.Info("analysis expert gave up", "failed_queries", failed)
	return expertFailed, nil
}

// textExpert answers from the leading part of a text file.
func (c *Capability) textExpert(ctx context.Context, path, instructions string) (string, error) {
	preview, err := readPreview(path, maxPreview)
	if err != nil {
		return "", err
	}

	t := model.NewTranscript(
		domain.Message{Role: domain.RoleSystem, Content: textPrompt},
		domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf("Contents of %s:\n\n%s", path, preview)},
		domain.Message{Role: domain.RoleUser, Content: instructions},
	)
	tools := []domain.ToolDefinition{provideAnswerTool}

	for turn := 0; turn < maxFailedQueries; turn++ {
		resp, err := c.model.RunInference(ctx, t, tools, expertTemperature, true)
		if err != nil {
			return "", err
		}
		var answer string
		t.Reply(resp, func(call domain.ToolCall) string {
			if call.Name != provideAnswerTool.Name {
				return fmt.Sprintf("No such tool '%s'", call.Name)
			}
			answer = strings.TrimSpace(tool.ArgsString(call.Arguments, "answer"))
			return "Success"
		})
		if answer != "" {
			return answer, nil
		}
		if !resp.HasToolCalls() {
			t.Append(domain.Message{Role: domain.RoleUser, Content: strings.TrimSpace(useAnswerTool)})
		}
	}
	return expertFailed, nil
}

// readPreview returns at most limit runes of the file, noting truncation.
func readPreview(path string, limit int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, limit*4)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	runes := []rune(string(buf[:n]))
	if len(runes) > limit || n == len(buf) {
		if len(runes) > limit {
			runes = runes[:limit]
		}
		return string(runes) + "\n\n[file truncated]", nil
	}
	return string(runes), nil
}
