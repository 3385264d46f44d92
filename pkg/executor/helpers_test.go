package executor

import (
	"context"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// funcProcessor adapts a function to processor.Processor
type funcProcessor struct {
	processor.Base
	run func(ctx context.Context, bag article.FieldBag) (article.FieldBag, error)
}

func (f *funcProcessor) Run(ctx context.Context, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	return f.run(ctx, bag)
}

func newFuncProcessor(name string, run func(ctx context.Context, bag article.FieldBag) (article.FieldBag, error)) processor.Processor {
	return &funcProcessor{
		Base: processor.NewBase(processor.Descriptor{Name: name, Version: "1.0.0"}, processor.Config{"k": "v"}),
		run:  run,
	}
}

func upper() processor.Processor {
	return newFuncProcessor("upper", func(ctx context.Context, bag article.FieldBag) (article.FieldBag, error) {
		return article.FieldBag{"out": bag.String("in") + "!"}, nil
	})
}
