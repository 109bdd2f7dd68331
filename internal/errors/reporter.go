package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of an error
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
	Help    ErrorLevel = "help"
)

// ErrorReporter renders IR errors for terminal output
type ErrorReporter struct {
	module string
}

// NewErrorReporter creates a new error reporter for a module
func NewErrorReporter(module string) *ErrorReporter {
	return &ErrorReporter{module: module}
}

// FormatError formats an IR error with Rust-like styling
func (er *ErrorReporter) FormatError(err *IRError) string {
	var result strings.Builder

	levelColor := er.getLevelColor(err.Level)
	dim := color.New(color.Faint).SprintFunc()

	level := err.Level
	if level == "" {
		level = Error
	}

	kind := string(err.Kind)
	if err.SubKind != "" {
		kind += "/" + string(err.SubKind)
	}

	// Header: error[E1000]: message
	if err.Code != "" {
		result.WriteString(fmt.Sprintf("%s[%s]: %s: %s\n",
			levelColor(string(level)), err.Code, kind, err.Message))
	} else {
		result.WriteString(fmt.Sprintf("%s: %s: %s\n",
			levelColor(string(level)), kind, err.Message))
	}

	// Location line: --> module @function:block:#index
	loc := err.Location.String()
	if loc == "" {
		loc = "<module>"
	}
	result.WriteString(fmt.Sprintf("  %s %s %s\n", dim("-->"), er.module, loc))

	if err.Code != "" {
		result.WriteString(fmt.Sprintf("  %s %s\n", dim("│"),
			dim(fmt.Sprintf("%s: %s", GetErrorCategory(err.Code), GetErrorDescription(err.Code)))))
	}

	for _, note := range err.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		result.WriteString(fmt.Sprintf("  %s %s %s\n", dim("│"), noteColor("note:"), note))
	}

	if err.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		result.WriteString(fmt.Sprintf("  %s %s %s\n", dim("│"), helpColor("help:"), err.HelpText))
	}

	result.WriteString("\n")
	return result.String()
}

// Format renders any error; non-IR errors get a plain header
func (er *ErrorReporter) Format(err error) string {
	var ire *IRError
	if asIRError(err, &ire) {
		return er.FormatError(ire)
	}
	return fmt.Sprintf("%s: %v\n\n", er.getLevelColor(Error)("error"), err)
}

// getLevelColor returns the appropriate color function for an error level
func (er *ErrorReporter) getLevelColor(level ErrorLevel) func(...interface{}) string {
	switch level {
	case Error:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}
