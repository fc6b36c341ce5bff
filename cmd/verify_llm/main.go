package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"StrategyRadar/pkg/cache"
	"StrategyRadar/pkg/collector"
	"StrategyRadar/pkg/config"
	"StrategyRadar/pkg/engine"
	"StrategyRadar/pkg/llm"
	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/model"
	"StrategyRadar/pkg/strategy"
)

const sampleStrategy = "Go long BTC on the 1h and 4h charts when RSI(14) drops below 30 and then crosses back above it, " +
	"with volume at least 1.5x the 20-bar average. Stop loss below the recent swing low, take profit at 2R."

// 验证大模型接入：解析一段策略文本，再对一个品种做条件匹配
func main() {
	text := flag.String("strategy", sampleStrategy, "策略文本")
	symbol := flag.String("symbol", "BTC/USDT", "匹配的品种")
	timeframe := flag.String("timeframe", "1h", "匹配的周期")
	synthetic := flag.Bool("synthetic", false, "使用模拟行情，不访问行情源")
	flag.Parse()

	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	completer, err := llm.NewClient(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIURL:      cfg.LLM.APIURL,
		APIKey:      cfg.LLM.APIKey,
		ModelName:   cfg.LLM.ModelName,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		log.Fatal("创建大模型客户端失败", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	// 解析策略
	parser := strategy.NewParser(completer, cache.NewMemoryStore(), time.Hour, log)
	parsed, ok := parser.Parse(ctx, *text)
	printJSON("策略解析结果", parsed)
	if !ok {
		log.Error("策略解析失败，已使用默认策略")
		os.Exit(1)
	}

	// 条件匹配
	var fetcher collector.CandleFetcher = &collector.Router{
		Crypto: collector.NewBinanceClient(cfg.MarketData.BinanceBaseURL, cfg.MarketData.Timeout),
		Other:  collector.NewYahooClient(cfg.MarketData.YahooBaseURL, cfg.MarketData.Timeout),
	}
	if *synthetic {
		fetcher = collector.NewSynthetic(uint64(time.Now().UnixNano()))
	}
	tf := model.NormalizeTimeframe(*timeframe)
	candles, err := fetcher.FetchCandles(ctx, *symbol, tf, cfg.Scanner.CandleLimit)
	if err != nil {
		log.Fatal("获取K线失败", zap.String("symbol", *symbol), zap.Error(err))
	}

	matcher := engine.NewAIMatcher(completer, cfg.Scanner.WindowSize, log)
	match, err := matcher.Evaluate(ctx, parsed, *symbol, tf, candles)
	if err != nil {
		log.Fatal("条件匹配失败", zap.Error(err))
	}
	if !match.IsMatch {
		fmt.Printf("\n===== %s %s 当前不满足入场条件 =====\n", *symbol, tf)
		return
	}
	printJSON("匹配结果", match.Setup(*symbol, tf))
}

func printJSON(title string, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("\n===== %s =====\n%s\n", title, data)
}
