// Package summarizer provides the summary steps: a model-backed summarizer
// that also extracts keywords, and a truncating one for tests and offline runs.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/article"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/llm"
	"github.com/wehubfusion/Pythia/pkg/processor"
	"github.com/wehubfusion/Pythia/pkg/schema"
)

// LLMName is the registry key of the model-backed summarizer
const LLMName = "summarizer_llm"

// DefaultMaxChars applies when neither configuration nor environment sets a limit
const DefaultMaxChars = 160

// LLMDescriptor declares the model-backed summarizer's inputs and outputs
var LLMDescriptor = processor.Descriptor{
	Name:     LLMName,
	Version:  "1.0.0",
	Requires: []string{article.FieldCleanText},
	Provides: []string{article.FieldSummary, article.FieldKeywords},
}

const promptTemplate = `你是一名资深中文新闻编辑，请阅读【新闻正文】，在保持核心信息完整的前提下，
用一句话写出精炼摘要并提取新闻的主题关键词。要求：
1. 长度 ≤ %d 个汉字（标点也计入长度，英文/数字按 1 字）。
2. 避免使用“本文”“文章”等空洞前缀。
3. 只写一句，不得分号、顿号并列多句。

【新闻正文】:
%s
【注意】
1. 不得编造信息，必须严格按照原文内容进行摘要。
2. 提取关键词时需规避常见的广告、营销等干扰信息。
【输出格式】
{"summary": "摘要文本", "keywords": ["关键词"]}`

var responseSchema = &schema.Schema{
	Type: schema.TypeObject,
	Properties: map[string]*schema.Property{
		"summary":  {Type: schema.TypeString, Required: true},
		"keywords": {Type: schema.TypeArray, Default: []any{}, Items: &schema.Property{Type: schema.TypeString}},
	},
}

// LLM asks the model for a one-sentence summary plus keywords.
type LLM struct {
	processor.Base
	provider    *llm.Provider
	maxChars    int
	temperature float64
}

// NewLLM returns a constructor bound to the shared model client.
// Recognised keys: max_chars (default defaultMaxChars, or DefaultMaxChars
// when that is not positive) and temperature (default 0).
func NewLLM(provider *llm.Provider, defaultMaxChars int) processor.Constructor {
	if defaultMaxChars <= 0 {
		defaultMaxChars = DefaultMaxChars
	}
	return func(cfg processor.Config) (processor.Processor, error) {
		maxChars, err := cfg.IntDefault("max_chars", defaultMaxChars)
		if err != nil {
			return nil, err
		}
		if maxChars <= 0 {
			return nil, pyerrors.InvalidConfig("max_chars", "must be positive")
		}
		temperature, err := cfg.Float("temperature", 0)
		if err != nil {
			return nil, err
		}
		return &LLM{
			Base:        processor.NewBase(LLMDescriptor, cfg),
			provider:    provider,
			maxChars:    maxChars,
			temperature: temperature,
		}, nil
	}
}

func (s *LLM) Run(ctx context.Context, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	text := bag.String(article.FieldCleanText)
	if strings.TrimSpace(text) == "" {
		return article.FieldBag{article.FieldSummary: "", article.FieldKeywords: []string{}}, nil
	}

	client, err := s.provider.Client()
	if err != nil {
		return nil, err
	}

	doc, err := llm.GenerateJSON(ctx, client, llm.ChatRequest{
		Prompt:      fmt.Sprintf(promptTemplate, s.maxChars, text),
		Temperature: s.temperature,
	}, responseSchema)
	if err != nil {
		ec.Logger().Error("LLM summarizer error", zap.String("processor", LLMName), zap.Error(err))
		return nil, err
	}

	summary := strings.TrimSpace(doc["summary"].(string))
	return article.FieldBag{
		article.FieldSummary:  Truncate(summary, s.maxChars),
		article.FieldKeywords: llm.StringSlice(doc["keywords"]),
	}, nil
}
