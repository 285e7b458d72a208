package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Load reads a rules file and overlays it on Default. Fields missing from
// the file (or set to their zero value) keep their defaults; a list present in
// the file replaces the default list entirely. The format is chosen by extension: .yaml, .yml or
// .toml.
func Load(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// LoadOrDefault returns Default when path is empty, otherwise Load(path).
func LoadOrDefault(path string) (Rules, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes rules in the format named by ext and validates the result.
func Parse(data []byte, ext string) (Rules, error) {
	var r Rules

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &r); err != nil {
			return Rules{}, fmt.Errorf("failed to parse yaml rules: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &r); err != nil {
			return Rules{}, fmt.Errorf("failed to parse toml rules: %w", err)
		}
	default:
		return Rules{}, fmt.Errorf("unsupported rules format %q", ext)
	}

	r = overlay(Default(), r)
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

func overlay(base, over Rules) Rules {
	c, o := &base.Classifier, over.Classifier
	setString(&c.OptionPattern, o.OptionPattern)
	setInt(&c.MinOptions, o.MinOptions)
	setList(&c.ConfirmationPatterns, o.ConfirmationPatterns)
	setInt(&c.ConfirmationMaxLen, o.ConfirmationMaxLen)
	setList(&c.ErrorMarkers, o.ErrorMarkers)
	setList(&c.WorkingMarkers, o.WorkingMarkers)
	setInt(&c.WorkingWindow, o.WorkingWindow)
	setList(&c.CompleteMarkers, o.CompleteMarkers)

	p, q := &base.Prompt, over.Prompt
	setList(&p.Indicators, q.Indicators)
	setString(&p.OptionPattern, q.OptionPattern)
	setString(&p.OptionLinePattern, q.OptionLinePattern)
	setString(&p.BoxChars, q.BoxChars)
	setList(&p.FooterPhrases, q.FooterPhrases)
	setInt(&p.MinOptionText, q.MinOptionText)
	setInt(&p.MinQuestionLine, q.MinQuestionLine)
	setInt(&p.MaxQuestionLines, q.MaxQuestionLines)
	setInt(&p.MinQuestionLen, q.MinQuestionLen)
	setString(&p.FallbackQuestion, q.FallbackQuestion)
	setString(&p.CallbackDataPrefix, q.CallbackDataPrefix)

	if len(over.Tools) > 0 {
		base.Tools = over.Tools
	}
	return base
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}
