// Package parser loads the bot's message catalog from an embedded yaml file
// and renders texts with inline keyboards.
package parser

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot/models"
	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

type Button struct {
	Text         string `yaml:"text"`
	CallbackData string `yaml:"callback_data,omitempty"`
	URL          string `yaml:"url,omitempty"`
}

type Message struct {
	Text    string     `yaml:"text"`
	Buttons [][]Button `yaml:"buttons,omitempty"`
}

var (
	catalog     map[string]Message
	catalogOnce sync.Once
)

func loadCatalog() {
	catalogOnce.Do(func() {
		catalog = make(map[string]Message)
		if err := yaml.Unmarshal(messagesYAML, &catalog); err != nil {
			panic(fmt.Sprintf("broken message catalog: %v", err))
		}
	})
}

// GetMessage renders the catalog entry, substituting {key} placeholders in
// the text and button fields from vars.
func GetMessage(key string, vars map[string]string) (string, *models.InlineKeyboardMarkup) {
	loadCatalog()

	msg, ok := catalog[key]
	if !ok {
		return key, nil
	}

	text := substitute(msg.Text, vars)
	if len(msg.Buttons) == 0 {
		return text, nil
	}

	rows := make([][]Button, len(msg.Buttons))
	for i, row := range msg.Buttons {
		rows[i] = make([]Button, len(row))
		for j, b := range row {
			rows[i][j] = Button{
				Text:         substitute(b.Text, vars),
				CallbackData: substitute(b.CallbackData, vars),
				URL:          substitute(b.URL, vars),
			}
		}
	}
	return text, BuildInlineKeyboard(rows)
}

// BuildInlineKeyboard converts button rows into telegram reply markup. Used
// directly by handlers that build dynamic keyboards.
func BuildInlineKeyboard(rows [][]Button) *models.InlineKeyboardMarkup {
	keyboard := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		line := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			line = append(line, models.InlineKeyboardButton{
				Text:         b.Text,
				CallbackData: b.CallbackData,
				URL:          b.URL,
			})
		}
		keyboard = append(keyboard, line)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

func substitute(s string, vars map[string]string) string {
	if s == "" || len(vars) == 0 {
		return s
	}
	for k, v := range vars {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}
