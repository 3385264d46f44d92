// Package eventllm extracts events from clean_text with a language model.
package eventllm

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

// Name is the registry key of the LLM event extractor
const Name = "event_llm"

// EventTypes are the event types the model may assign
var EventTypes = []string{
	"ProductLaunch", "Acquisition", "Financing", "PersonnelChange",
	"PolicyRelease", "Partnership", "Lawsuit",
}

// Descriptor declares the extractor's inputs and outputs
var Descriptor = processor.Descriptor{
	Name:     Name,
	Version:  "1.0.0",
	Requires: []string{article.FieldCleanText},
	Provides: []string{article.FieldEvents},
}

const promptTemplate = `你是新闻事件抽取系统，请从【句子】中识别真实发生的事件，
最多 %d 条，若无事件返回 {"data": []}。

允许的事件类型: %s

【句子】:
%s

仅输出 JSON，无需输出你的推理过程，格式如下：
{"data": [{"trigger": "触发词", "type": "事件类型", "arguments": [{"role": "角色", "text": "原文片段"}], "summary": "一句话描述"}]}`

var responseSchema = &schema.Schema{
	Type: schema.TypeObject,
	Properties: map[string]*schema.Property{
		"data": {
			Type:    schema.TypeArray,
			Default: []any{},
			Items: &schema.Property{
				Type: schema.TypeObject,
				Properties: map[string]*schema.Property{
					"trigger": {Type: schema.TypeString, Required: true},
					"type":    {Type: schema.TypeString, Required: true},
					"arguments": {
						Type:    schema.TypeArray,
						Default: []any{},
						Items: &schema.Property{
							Type: schema.TypeObject,
							Properties: map[string]*schema.Property{
								"role": {Type: schema.TypeString, Required: true},
								"text": {Type: schema.TypeString, Required: true},
							},
						},
					},
					"summary": {Type: schema.TypeString, Default: ""},
				},
			},
		},
	},
}

// Extractor asks the model for at most maxEvents events.
type Extractor struct {
	processor.Base
	provider    *llm.Provider
	maxEvents   int
	temperature float64
}

// New returns a constructor bound to the shared model client.
// Recognised keys: max_events (default 3) and temperature (default 0).
func New(provider *llm.Provider) processor.Constructor {
	return func(cfg processor.Config) (processor.Processor, error) {
		maxEvents, err := cfg.IntDefault("max_events", 3)
		if err != nil {
			return nil, err
		}
		if maxEvents <= 0 {
			return nil, pyerrors.InvalidConfig("max_events", "must be positive")
		}
		temperature, err := cfg.Float("temperature", 0)
		if err != nil {
			return nil, err
		}
		return &Extractor{
			Base:        processor.NewBase(Descriptor, cfg),
			provider:    provider,
			maxEvents:   maxEvents,
			temperature: temperature,
		}, nil
	}
}

func (e *Extractor) Run(ctx context.Context, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	text := bag.String(article.FieldCleanText)
	if strings.TrimSpace(text) == "" {
		return article.FieldBag{article.FieldEvents: []article.Event{}}, nil
	}

	client, err := e.provider.Client()
	if err != nil {
		return nil, err
	}

	doc, err := llm.GenerateJSON(ctx, client, llm.ChatRequest{
		Prompt:      fmt.Sprintf(promptTemplate, e.maxEvents, strings.Join(EventTypes, ", "), text),
		Temperature: e.temperature,
	}, responseSchema)
	if err != nil {
		ec.Logger().Error("event_parse_fail", zap.String("processor", Name), zap.Error(err))
		return nil, err
	}

	items, _ := doc["data"].([]any)
	if len(items) > e.maxEvents {
		items = items[:e.maxEvents]
	}

	events := make([]article.Event, 0, len(items))
	for i, item := range items {
		evt, err := decodeEvent(item)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, evt)
	}

	return article.FieldBag{article.FieldEvents: events}, nil
}

func decodeEvent(item any) (article.Event, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return article.Event{}, fmt.Errorf("expected object, got %T", item)
	}
	trigger, _ := obj["trigger"].(string)
	typ, _ := obj["type"].(string)
	if trigger == "" || typ == "" {
		return article.Event{}, fmt.Errorf("trigger and type are required")
	}

	evt := article.Event{Trigger: trigger, Type: typ, Arguments: []article.EventArg{}}
	evt.Summary, _ = obj["summary"].(string)

	args, _ := obj["arguments"].([]any)
	for j, a := range args {
		arg, ok := a.(map[string]any)
		if !ok {
			return article.Event{}, fmt.Errorf("argument %d: expected object, got %T", j, a)
		}
		role, _ := arg["role"].(string)
		text, _ := arg["text"].(string)
		evt.Arguments = append(evt.Arguments, article.EventArg{Role: role, Text: text})
	}
	return evt, nil
}
