package sshserver

import (
	"strconv"
	"strings"
)

type rgb struct {
	r int
	g int
	b int
}

type consoleTheme struct {
	Name      string
	PromptFG  rgb
	OKFG      rgb
	ErrorFG   rgb
	MetaFG    rgb
	PlayingFG rgb
	ArmFG     rgb
}

// DefaultTheme is used when the configured theme is unknown.
const DefaultTheme = "outrun"

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
)

var consoleThemes = map[string]consoleTheme{
	"outrun": {
		Name:      "outrun",
		PromptFG:  rgb{r: 0, g: 229, b: 255},
		OKFG:      rgb{r: 112, g: 214, b: 255},
		ErrorFG:   rgb{r: 255, g: 107, b: 107},
		MetaFG:    rgb{r: 154, g: 163, b: 178},
		PlayingFG: rgb{r: 255, g: 91, b: 189},
		ArmFG:     rgb{r: 255, g: 107, b: 107},
	},
	"gruvbox": {
		Name:      "gruvbox",
		PromptFG:  rgb{r: 250, g: 189, b: 47},
		OKFG:      rgb{r: 184, g: 187, b: 38},
		ErrorFG:   rgb{r: 251, g: 73, b: 52},
		MetaFG:    rgb{r: 146, g: 131, b: 116},
		PlayingFG: rgb{r: 131, g: 165, b: 152},
		ArmFG:     rgb{r: 214, g: 93, b: 14},
	},
	"tokyo-midnight": {
		Name:      "tokyo-midnight",
		PromptFG:  rgb{r: 122, g: 162, b: 247},
		OKFG:      rgb{r: 158, g: 206, b: 106},
		ErrorFG:   rgb{r: 247, g: 118, b: 142},
		MetaFG:    rgb{r: 127, g: 133, b: 163},
		PlayingFG: rgb{r: 187, g: 154, b: 247},
		ArmFG:     rgb{r: 247, g: 118, b: 142},
	},
}

func themeForName(name string) consoleTheme {
	name = strings.ToLower(strings.TrimSpace(name))
	if theme, ok := consoleThemes[name]; ok {
		return theme
	}
	return consoleThemes[DefaultTheme]
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

// painter colours text when the session has a terminal and is a no-op
// otherwise.
type painter struct {
	theme consoleTheme
	color bool
}

func (p painter) fg(c rgb, text string) string {
	if !p.color || text == "" {
		return text
	}
	return ansiFgRGB(c) + text + ansiReset
}

func (p painter) bold(text string) string {
	if !p.color || text == "" {
		return text
	}
	return ansiBold + text + ansiReset
}
