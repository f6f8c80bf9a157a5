package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Style describes a named rendering preset referenced from channel config.
type Style struct {
	Name         string  `yaml:"name"`
	Font         string  `yaml:"font"`
	FontSize     int     `yaml:"font_size"`
	CaptionColor string  `yaml:"caption_color"`
	AccentColor  string  `yaml:"accent_color"`
	SafeTopPx    int     `yaml:"safe_top_px"`
	SafeBottomPx int     `yaml:"safe_bottom_px"`
	MusicVolume  float64 `yaml:"music_volume"`
}

type stylesFile struct {
	Styles []Style `yaml:"styles"`
}

// DefaultStyle is used when a channel references a preset that is not defined.
func DefaultStyle(name string) Style {
	return Style{
		Name:         name,
		Font:         "Inter-Bold",
		FontSize:     72,
		CaptionColor: "#FFFFFF",
		AccentColor:  "#FFD400",
		SafeTopPx:    200,
		SafeBottomPx: 200,
		MusicVolume:  0.12,
	}
}

// LoadStyles reads the YAML style preset file. A missing file is not an
// error; callers fall back to DefaultStyle.
func LoadStyles(path string) (map[string]Style, error) {
	styles := make(map[string]Style)
	if strings.TrimSpace(path) == "" {
		return styles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return styles, nil
		}
		return nil, fmt.Errorf("read styles file: %w", err)
	}
	var parsed stylesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse styles file: %w", err)
	}
	for _, style := range parsed.Styles {
		name := strings.TrimSpace(style.Name)
		if name == "" {
			continue
		}
		styles[strings.ToLower(name)] = style
	}
	return styles, nil
}

// StyleFor resolves a channel's style preset against the loaded set.
func StyleFor(styles map[string]Style, name string) Style {
	if style, ok := styles[strings.ToLower(strings.TrimSpace(name))]; ok {
		return style
	}
	return DefaultStyle(name)
}
