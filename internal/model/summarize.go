package model

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"buddy/internal/domain"
)

const summaryPrompt = "You will condense the user's message into a concise, informative summary that " +
	"captures meaningful details and context. You will attempt to keep the summary as short as " +
	"possible while maintaining the necessary information it conveys"

// Summarize condenses content with the summary model at temperature 0.
// Failures are returned to the caller; there is no truncation fallback.
func (c *Client) Summarize(ctx context.Context, content string) (string, error) {
	c.metrics.Summaries.Inc()
	resp, err := c.chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: summaryPrompt},
			{Role: domain.RoleUser, Content: content},
		},
		Model:       c.summaryModel,
		MaxTokens:   c.maxTokens,
		Temperature: 0,
		ToolChoice:  domain.ToolChoiceAuto,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// SummarizeIfLong returns content unchanged unless it is longer than the
// summary threshold, in which case it returns the summary.
func (c *Client) SummarizeIfLong(ctx context.Context, content string) (string, error) {
	if !c.IsLong(content) {
		return content, nil
	}
	c.logger.Debug("summarizing output", "chars", utf8.RuneCountInString(content))
	return c.Summarize(ctx, content)
}

// IsLong reports whether content exceeds the summary threshold.
func (c *Client) IsLong(content string) bool {
	return utf8.RuneCountInString(content) > c.summaryThreshold
}
