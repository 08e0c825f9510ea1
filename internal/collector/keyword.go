package collector

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Defaults for the intro phase.
const (
	DefaultKeyword = "pitchlab"
	DefaultMessage = "我们做的产品主要是https://pitchlab.pro/，一个基于AI的表达训练、销售模拟、面试模拟的软件如果您想参与面试可以先尝试使用，面试内容都会基于这个产品来提问也看看您对我们VoiceAI这个方向是不是比较感兴趣～"
)

// KeywordConfig controls the intro phase: when enabled and the transcript
// lacks Keyword, the canned phrase and Message are sent before
// classification.
type KeywordConfig struct {
	Keyword string `json:"keyword" validate:"required_if=Enabled true"`
	Message string `json:"message" validate:"required_if=Enabled true"`
	Enabled bool   `json:"enabled"`
}

// DefaultKeywordConfig returns the built-in intro configuration.
func DefaultKeywordConfig() KeywordConfig {
	return KeywordConfig{Keyword: DefaultKeyword, Message: DefaultMessage, Enabled: true}
}

// Validate checks that an enabled config has something to send.
func (k KeywordConfig) Validate() error {
	if err := validator.New().Struct(k); err != nil {
		return fmt.Errorf("invalid keyword config: %w", err)
	}
	return nil
}

// KeywordUpdate is a partial KeywordConfig. Nil fields keep their value.
type KeywordUpdate struct {
	Keyword *string `json:"keyword,omitempty"`
	Message *string `json:"message,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// Apply returns k with the non-nil fields of u.
func (u KeywordUpdate) Apply(k KeywordConfig) KeywordConfig {
	if u.Keyword != nil {
		k.Keyword = *u.Keyword
	}
	if u.Message != nil {
		k.Message = *u.Message
	}
	if u.Enabled != nil {
		k.Enabled = *u.Enabled
	}
	return k
}
