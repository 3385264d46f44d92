// Package sentiment classifies the polarity of an article with a language model.
package sentiment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/llm"
	"github.com/wehubfusion/Pythia/pkg/processor"
	"github.com/wehubfusion/Pythia/pkg/schema"
)

// Name is the registry key of the sentiment classifier
const Name = "sentiment_llm"

// Descriptor declares the classifier's inputs and outputs
var Descriptor = processor.Descriptor{
	Name:     Name,
	Version:  "1.0.0",
	Requires: []string{article.FieldCleanText},
	Provides: []string{article.FieldSentiment},
}

const promptTemplate = `判断下面这篇新闻对其主要对象的整体情感倾向。
label 只能是 positive、neutral、negative 之一；score 为 0 到 1 之间的置信度。

【新闻正文】:
%s

仅输出 JSON：{"label": "neutral", "score": 0.5}`

var responseSchema = &schema.Schema{
	Type: schema.TypeObject,
	Properties: map[string]*schema.Property{
		"label": {
			Type:     schema.TypeString,
			Required: true,
			Validation: &schema.ValidationRules{
				Enum: []string{article.SentimentPositive, article.SentimentNeutral, article.SentimentNegative},
			},
		},
		"score": {
			Type:       schema.TypeNumber,
			Required:   true,
			Validation: &schema.ValidationRules{Minimum: schema.Float(0), Maximum: schema.Float(1)},
		},
	},
}

// Classifier produces a Sentiment for clean_text.
type Classifier struct {
	processor.Base
	provider *llm.Provider
}

// New returns a constructor bound to the shared model client.
func New(provider *llm.Provider) processor.Constructor {
	return func(cfg processor.Config) (processor.Processor, error) {
		return &Classifier{Base: processor.NewBase(Descriptor, cfg), provider: provider}, nil
	}
}

func (c *Classifier) Run(ctx context.Context, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	text := bag.String(article.FieldCleanText)
	if strings.TrimSpace(text) == "" {
		return article.FieldBag{article.FieldSentiment: article.Sentiment{Label: article.SentimentNeutral}}, nil
	}

	client, err := c.provider.Client()
	if err != nil {
		return nil, err
	}

	doc, err := llm.GenerateJSON(ctx, client, llm.ChatRequest{Prompt: fmt.Sprintf(promptTemplate, text)}, responseSchema)
	if err != nil {
		ec.Logger().Error("sentiment_parse_fail", zap.String("processor", Name), zap.Error(err))
		return nil, err
	}

	return article.FieldBag{article.FieldSentiment: article.Sentiment{
		Label: doc["label"].(string),
		Score: doc["score"].(float64),
	}}, nil
}
