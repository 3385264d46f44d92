// Package category assigns a category and topic list to an article by
// running a JavaScript rule script in a sandboxed goja runtime.
//
// A script must define classify(text, title) returning an object with a
// string category and an array of string topics.
package category

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/wehubfusion/Pythia/pkg/article"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// Name is the registry key of the script classifier
const Name = "category_script"

// Descriptor declares the classifier's inputs and outputs
var Descriptor = processor.Descriptor{
	Name:     Name,
	Version:  "1.0.0",
	Requires: []string{article.FieldCleanText},
	Provides: []string{article.FieldCategory, article.FieldTopics},
}

// DefaultScript scores keyword hits per category
const DefaultScript = `
var rules = [
	{category: "technology", keywords: ["科技", "芯片", "人工智能", "AI", "iPhone", "手机", "软件", "互联网", "半导体"]},
	{category: "finance", keywords: ["融资", "股价", "上市", "银行", "收购", "财报", "投资", "营收"]},
	{category: "policy", keywords: ["政策", "监管", "国务院", "部委", "法规", "条例"]},
	{category: "energy", keywords: ["能源", "电池", "光伏", "石油", "新能源", "电网"]},
	{category: "automotive", keywords: ["汽车", "电动车", "车企", "自动驾驶"]}
];

function classify(text, title) {
	var hay = (title || "") + " " + (text || "");
	var topics = [];
	var best = "general";
	var bestHits = 0;
	for (var i = 0; i < rules.length; i++) {
		var hits = 0;
		for (var j = 0; j < rules[i].keywords.length; j++) {
			if (hay.indexOf(rules[i].keywords[j]) >= 0) { hits++; }
		}
		if (hits > 0) { topics.push(rules[i].category); }
		if (hits > bestHits) { best = rules[i].category; bestHits = hits; }
	}
	return {category: best, topics: topics};
}
`

// Classifier runs a compiled rule script per article. A fresh runtime is
// created for every run since goja runtimes are not goroutine-safe.
type Classifier struct {
	processor.Base
	program *goja.Program
	timeout time.Duration
}

// New creates a classifier. Recognised keys: script (default DefaultScript)
// and timeout_ms (default 1000).
func New(cfg processor.Config) (processor.Processor, error) {
	script, err := cfg.StringDefault("script", DefaultScript)
	if err != nil {
		return nil, err
	}
	timeoutMs, err := cfg.IntDefault("timeout_ms", 1000)
	if err != nil {
		return nil, err
	}
	if timeoutMs <= 0 {
		return nil, pyerrors.InvalidConfig("timeout_ms", "must be positive")
	}

	program, err := goja.Compile(Name, script, true)
	if err != nil {
		return nil, pyerrors.InvalidConfig("script", err.Error())
	}

	return &Classifier{
		Base:    processor.NewBase(Descriptor, cfg),
		program: program,
		timeout: time.Duration(timeoutMs) * time.Millisecond,
	}, nil
}

func (c *Classifier) Run(ctx context.Context, bag article.FieldBag, ec *processor.ExecutionContext) (out article.FieldBag, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during script execution: %v", r)
		}
	}()

	vm := goja.New()
	if err := hardenRuntime(vm); err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-timeoutCtx.Done():
			vm.Interrupt("execution timeout")
		case <-done:
		}
	}()

	if _, err := vm.RunProgram(c.program); err != nil {
		return nil, scriptError(err)
	}

	classify, ok := goja.AssertFunction(vm.Get("classify"))
	if !ok {
		return nil, fmt.Errorf("script does not define classify(text, title)")
	}

	value, err := classify(goja.Undefined(),
		vm.ToValue(bag.String(article.FieldCleanText)),
		vm.ToValue(bag.String(article.FieldTitle)))
	if err != nil {
		return nil, scriptError(err)
	}

	return decodeResult(value.Export())
}

func scriptError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("%w: category script exceeded its time limit", pyerrors.ErrTimeout)
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return fmt.Errorf("category script failed: %s", exc.Value().String())
	}
	return fmt.Errorf("category script failed: %w", err)
}

func decodeResult(v any) (article.FieldBag, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("classify must return an object, got %T", v)
	}

	category, ok := obj["category"].(string)
	if !ok || category == "" {
		return nil, fmt.Errorf("classify returned no category")
	}

	topics := []string{}
	switch t := obj["topics"].(type) {
	case nil:
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("topics must be strings, got %T", item)
			}
			topics = append(topics, s)
		}
	default:
		return nil, fmt.Errorf("topics must be an array, got %T", t)
	}

	return article.FieldBag{article.FieldCategory: category, article.FieldTopics: topics}, nil
}
