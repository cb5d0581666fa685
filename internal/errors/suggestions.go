package errors

import (
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// SuggestionContext provides context for generating suggestions
type SuggestionContext struct {
	Templates  []string
	ConfigPath string
	EmailsDir  string
	ServerURL  string
}

// PreviewNotFoundError generates suggestions for an unknown template or preview function
func PreviewNotFoundError(template string, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check the preview file exists",
			Description: "Preview files live in the previews directory next to your templates",
			Command:     "ls -la " + ctx.EmailsDir + "/previews/",
			Example:     ctx.EmailsDir + "/previews/" + template,
		},
		{
			Title:       "List all discovered previews",
			Description: "See what postcard has found",
			Command:     "postcard list",
		},
	}

	if len(ctx.Templates) > 0 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Available templates",
			Description: "These templates are currently available: " + strings.Join(ctx.Templates, ", "),
		})

		for _, name := range ctx.Templates {
			if strings.Contains(strings.ToLower(name), strings.ToLower(template)) ||
				strings.Contains(strings.ToLower(template), strings.ToLower(name)) {
				suggestions = append(suggestions, ErrorSuggestion{
					Title:       "Did you mean '" + name + "'?",
					Description: "Similar template found",
					Command:     "postcard render " + name + " <function>",
				})
				break
			}
		}
	}

	return suggestions
}

// ServerStartError generates suggestions for server startup failures
func ServerStartError(err error, port int, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{}

	errStr := err.Error()

	if strings.Contains(errStr, "address already in use") || strings.Contains(errStr, "bind") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Port already in use",
			Description: fmt.Sprintf("Port %d is already being used by another process", port),
			Command:     fmt.Sprintf("lsof -i :%d", port),
		})

		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use a different port",
			Description: "Start the server on a different port",
			Command:     fmt.Sprintf("postcard preview --port %d", port+1000),
		})

		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Kill the process using the port",
			Description: "Stop the process that's using the port",
			Command:     fmt.Sprintf("lsof -ti :%d | xargs kill", port),
		})
	}

	if strings.Contains(errStr, "permission denied") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Permission denied",
			Description: "You don't have permission to bind to this port",
		})

		if port < 1024 {
			suggestions = append(suggestions, ErrorSuggestion{
				Title:       "Use unprivileged port",
				Description: "Ports below 1024 require root privileges",
				Command:     "postcard preview --port 8080",
			})
		}
	}

	return suggestions
}

// ConfigurationError generates suggestions for configuration issues
func ConfigurationError(configError string, configPath string, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check configuration file",
			Description: "Verify your .postcard.yml file exists and has valid syntax",
			Command:     "cat " + configPath,
		},
		{
			Title:       "Inspect configuration loading",
			Description: "Debug logging prints which config file and values were used",
			Command:     "postcard preview --log-level debug",
		},
	}

	if strings.Contains(configError, "yaml") || strings.Contains(configError, "unmarshal") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "There's a syntax error in your YAML configuration",
			Example:     "Use proper indentation and avoid tabs",
		})
	}

	if strings.Contains(configError, "path") || strings.Contains(configError, "directory") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check directory paths",
			Description: "Verify all paths in your configuration exist",
			Command:     "ls -la",
		})
	}

	return suggestions
}

// WebSocketError generates suggestions for a lost reload channel
func WebSocketError(err error, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check the preview server is running",
			Description: "The reload channel is served by postcard preview at /ws",
			Command:     "postcard preview",
		},
		{
			Title:       "Verify hot reload is enabled",
			Description: "Without hot_reload the server never signals a change",
			Example:     "development:\n  hot_reload: true",
		},
	}

	if ctx != nil && ctx.ServerURL != "" {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check the server address",
			Description: "Open the health endpoint to confirm the address is reachable",
			Command:     "curl " + strings.TrimRight(ctx.ServerURL, "/") + "/health",
		})
	}

	if err == nil {
		return suggestions
	}
	errStr := err.Error()

	if strings.Contains(errStr, "403") || strings.Contains(errStr, "origin") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Origin validation failed",
			Description: "Add the host you connect through to server.allowed_origins",
			Example:     "server:\n  allowed_origins: [\"preview.local:3883\"]",
		})
	}

	if strings.Contains(errStr, "connection refused") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Nothing is listening",
			Description: "The server may have stopped or be bound to another port",
		})
	}

	return suggestions
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
		output.WriteString("\n")
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	return FormatSuggestions(e.Title, e.Suggestions)
}

// Unwrap returns the original error
func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates a new enhanced error with suggestions
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
