package strategy

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"StrategyRadar/pkg/cache"
	"StrategyRadar/pkg/llm"
	"StrategyRadar/pkg/model"
)

type fakeCompleter struct {
	mu    sync.Mutex
	out   string
	err   error
	calls int
	opts  []llm.CompletionOptions
	last  []llm.Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []llm.Message, opts llm.CompletionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.opts = append(f.opts, opts)
	f.last = messages
	return f.out, f.err
}

const goodParse = `{
  "name": "RSI bounce",
  "direction": "buy",
  "timeframes": ["1H", "4h", "monthly", "1h"],
  "entryConditions": [
    {"type": "indicator", "indicator": "RSI", "condition": "RSI(14) below 30", "weight": 1.7},
    {"type": "indicator", "indicator": "EMA", "condition": "price above EMA 21"},
    {"type": "", "indicator": "", "condition": "", "weight": 0.5}
  ],
  "exitConditions": [
    {"type": "take_profit", "value": "2R"},
    {"type": "stop-loss", "value": "below swing low"},
    {"type": "trailing", "value": "x"}
  ],
  "description": "Buy oversold dips"
}`

func TestParse_Normalizes(t *testing.T) {
	fc := &fakeCompleter{out: goodParse}
	p := NewParser(fc, nil, 0, nil)

	got, ok := p.Parse(context.Background(), "buy when RSI < 30 on 1h/4h")
	if !ok {
		t.Fatalf("ok=false want true")
	}
	if got.Direction != model.DirectionLong {
		t.Fatalf("direction=%s want LONG", got.Direction)
	}
	if !reflect.DeepEqual(got.Timeframes, []string{"1h", "4h"}) {
		t.Fatalf("timeframes=%v", got.Timeframes)
	}
	if len(got.EntryConditions) != 2 {
		t.Fatalf("entry conditions=%d want 2", len(got.EntryConditions))
	}
	if got.EntryConditions[0].Weight != 1 || got.EntryConditions[1].Weight != 1 {
		t.Fatalf("weights=%v,%v want 1,1", got.EntryConditions[0].Weight, got.EntryConditions[1].Weight)
	}
	if len(got.ExitConditions) != 2 || got.ExitConditions[0].Type != model.ExitTakeProfit || got.ExitConditions[1].Type != model.ExitStopLoss {
		t.Fatalf("exit conditions=%+v", got.ExitConditions)
	}

	if len(fc.opts) != 1 || !fc.opts[0].JSONMode || fc.opts[0].Temperature != 0.2 {
		t.Fatalf("opts=%+v", fc.opts)
	}
	if !strings.Contains(fc.last[len(fc.last)-1].Content, "buy when RSI < 30 on 1h/4h") {
		t.Fatalf("prompt does not embed strategy text")
	}
}

func TestParse_FailuresReturnDefault(t *testing.T) {
	cases := []struct {
		name string
		fc   *fakeCompleter
	}{
		{"llm error", &fakeCompleter{err: errors.New("boom")}},
		{"not json", &fakeCompleter{out: "I cannot help with that"}},
		{"bad types", &fakeCompleter{out: `{"name":"x","timeframes":"1h"}`}},
		{"empty object", &fakeCompleter{out: `{}`}},
	}
	want := model.DefaultParsedStrategy()
	for _, c := range cases {
		p := NewParser(c.fc, nil, 0, nil)
		got, ok := p.Parse(context.Background(), "text")
		if ok {
			t.Fatalf("%s: ok=true want false", c.name)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: got=%+v want=%+v", c.name, got, want)
		}
	}
}

func TestDefaultParsedStrategyShape(t *testing.T) {
	d := model.DefaultParsedStrategy()
	if d.Name != "Error parsing strategy" || d.Direction != model.DirectionBoth ||
		!reflect.DeepEqual(d.Timeframes, []string{"1h"}) || d.Description != "Failed to parse strategy text" ||
		d.EntryConditions == nil || len(d.EntryConditions) != 0 || d.ExitConditions == nil || len(d.ExitConditions) != 0 {
		t.Fatalf("default=%+v", d)
	}
}

func TestResolve_ContentAddressed(t *testing.T) {
	ctx := context.Background()
	fc := &fakeCompleter{out: goodParse}
	store := cache.NewMemoryStore()
	p := NewParser(fc, store, 0, nil)

	s := &model.Strategy{ID: "s1", StrategyText: "buy dips"}
	_, changed := p.Resolve(ctx, s)
	if !changed || fc.calls != 1 || s.AIParsedHash != ContentHash("buy dips") {
		t.Fatalf("first resolve: changed=%v calls=%d hash=%q", changed, fc.calls, s.AIParsedHash)
	}

	// 文本未变：直接复用
	if _, changed := p.Resolve(ctx, s); changed || fc.calls != 1 {
		t.Fatalf("second resolve: changed=%v calls=%d", changed, fc.calls)
	}

	// 另一个策略相同文本：命中共享缓存
	other := &model.Strategy{ID: "s2", StrategyText: "buy dips"}
	got, changed := p.Resolve(ctx, other)
	if !changed || fc.calls != 1 || got.Name != "RSI bounce" {
		t.Fatalf("shared resolve: changed=%v calls=%d name=%q", changed, fc.calls, got.Name)
	}

	// 文本修改后失效
	s.StrategyText = "sell rips"
	if _, changed := p.Resolve(ctx, s); !changed || fc.calls != 2 {
		t.Fatalf("edited resolve: changed=%v calls=%d", changed, fc.calls)
	}
}

func TestResolve_FailureNotCached(t *testing.T) {
	ctx := context.Background()
	fc := &fakeCompleter{err: errors.New("down")}
	store := cache.NewMemoryStore()
	p := NewParser(fc, store, 0, nil)

	s := &model.Strategy{ID: "s1", StrategyText: "anything"}
	got, changed := p.Resolve(ctx, s)
	if !changed || got.Name != "Error parsing strategy" || s.AIParsed == nil || s.AIParsedHash != "" {
		t.Fatalf("got=%+v changed=%v hash=%q", got, changed, s.AIParsedHash)
	}
	if _, found, _ := store.Get(ctx, cacheKeyPrefix+ContentHash("anything")); found {
		t.Fatalf("failure default must not be written to shared cache")
	}

	// 下次扫描重试
	fc.err, fc.out = nil, goodParse
	got, _ = p.Resolve(ctx, s)
	if fc.calls != 2 || got.Name != "RSI bounce" {
		t.Fatalf("retry: calls=%d name=%q", fc.calls, got.Name)
	}
}
