package main

import (
	"strconv"
	"strings"

	"github.com/triage-assist/server/internal/agent/model"
)

const noInformation = "No additional information provided"

// resolveAnswer turns terminal input into the recorded answer. Option
// numbers select labels; an empty answer picks the first option of a
// choice question.
func resolveAnswer(input string, format model.AnswerFormat, options []model.AnswerOption) string {
	input = strings.TrimSpace(input)
	if len(options) == 0 || format == model.FormatFreeText {
		if input == "" {
			return noInformation
		}
		return input
	}
	if input == "" {
		return options[0].Label
	}

	if format == model.FormatMultiSelect {
		parts := strings.Split(input, ",")
		labels := make([]string, 0, len(parts))
		for _, p := range parts {
			label, ok := optionAt(strings.TrimSpace(p), options)
			if !ok {
				return input
			}
			labels = append(labels, label)
		}
		return strings.Join(labels, ", ")
	}

	if label, ok := optionAt(input, options); ok {
		return label
	}
	return input
}

func optionAt(s string, options []model.AnswerOption) (string, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > len(options) {
		return "", false
	}
	return options[n-1].Label, true
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

func splitSymptoms(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
