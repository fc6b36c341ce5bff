package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"StrategyRadar/pkg/auth"
	"StrategyRadar/pkg/cache"
	"StrategyRadar/pkg/collector"
	"StrategyRadar/pkg/engine"
	"StrategyRadar/pkg/llm"
	"StrategyRadar/pkg/model"
	"StrategyRadar/pkg/monitor"
	"StrategyRadar/pkg/repository"
	"StrategyRadar/pkg/strategy"
)

var testJWT = auth.JWT{Secret: []byte("test-secret"), Audience: "authenticated"}

func init() {
	gin.SetMode(gin.TestMode)
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok, err := testJWT.Sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

type parseCompleter struct{ reply string }

func (p parseCompleter) Complete(context.Context, []llm.Message, llm.CompletionOptions) (string, error) {
	return p.reply, nil
}

// btcOnly 只对BTC/USDT给出做多信号
type btcOnly struct{}

func (btcOnly) Evaluate(_ context.Context, _ model.ParsedStrategy, symbol, _ string, candles []model.Candle) (engine.Match, error) {
	if symbol != "BTC/USDT" {
		return engine.Match{}, nil
	}
	entry := model.LastClose(candles)
	return engine.Match{IsMatch: true, Direction: model.DirectionLong, Entry: entry, StopLoss: entry * 0.97, TakeProfit: entry * 1.06, Confidence: 75, Reasons: []string{"breakout"}}, nil
}

type stubRunner struct{ err error }

func (s stubRunner) ScanForUser(context.Context, string, model.ScanRequest, string) (*model.ScanResult, error) {
	return nil, s.err
}

type testEnv struct {
	repo    *repository.MemoryRepository
	handler http.Handler
	owned   *model.Strategy
	public  *model.Strategy
	private *model.Strategy
	monitor *monitor.Monitor
}

func newTestEnv(t *testing.T, runner ScanRunner) *testEnv {
	t.Helper()
	ctx := context.Background()
	env := &testEnv{repo: repository.NewMemoryRepository(), monitor: monitor.NewMonitor(nil, nil)}

	env.owned = &model.Strategy{UserID: "user-1", Name: "owned", StrategyText: "Buy breakouts on 1h and 4h"}
	env.public = &model.Strategy{UserID: "user-2", Name: "public", StrategyText: "Public strategy", IsPublic: true}
	env.private = &model.Strategy{UserID: "user-2", Name: "private", StrategyText: "Private strategy"}
	for _, s := range []*model.Strategy{env.owned, env.public, env.private} {
		if err := env.repo.SaveStrategy(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	if runner == nil {
		parser := strategy.NewParser(parseCompleter{reply: `{"name":"Breakout","direction":"LONG","timeframes":["1h","4h"],
"entryConditions":[{"type":"price","indicator":"close","condition":"breaks 20-bar high","weight":1}],"exitConditions":[],"description":"d"}`},
			cache.NewMemoryStore(), 0, nil)
		scanner := engine.NewScanner(collector.NewSynthetic(7), nil, btcOnly{}, engine.ScannerConfig{Concurrency: 4}, nil)
		runner = engine.NewScanService(env.repo, parser, scanner, nil, engine.WithHealthReporter(env.monitor))
	}

	server := NewServer(ServerConfig{Port: "0"}, nil)
	server.SetupRoutes(NewHandlers(runner, env.repo, env.monitor, 0, nil), testJWT)
	env.handler = server.Handler()
	return env
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	s, _ := body["error"].(string)
	return s
}

func TestScanStrategy_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := env.do(m, "/api/v1/ai-scan-strategy", "", "")
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s code=%d want 405", m, w.Code)
		}
		if w.Body.Len() != 0 {
			t.Fatalf("%s body=%q want empty", m, w.Body.String())
		}
	}
}

func TestScanStrategy_Auth(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"strategy_id":"` + env.owned.ID + `"}`

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", "Unauthorized: missing bearer token"},
		{"wrong scheme", "Basic abc", "Unauthorized: missing bearer token"},
		{"empty bearer", "Bearer   ", "Unauthorized: missing bearer token"},
		{"garbage", "Bearer not-a-jwt", "Unauthorized: invalid token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/ai-scan-strategy", strings.NewReader(body))
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized || errorOf(t, w) != tc.want {
				t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
			}
		})
	}

	other := auth.JWT{Secret: []byte("other"), Audience: "authenticated"}
	forged, _ := other.Sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	if w := env.do(http.MethodPost, "/api/v1/ai-scan-strategy", forged, body); w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token code=%d", w.Code)
	}
}

func TestScanStrategy_BadRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := tokenFor(t, "user-1")
	for _, body := range []string{``, `{}`, `{"strategy_id":""}`, `{"strategy_id":"  "}`, `{not json`} {
		w := env.do(http.MethodPost, "/api/v1/ai-scan-strategy", tok, body)
		if w.Code != http.StatusBadRequest || errorOf(t, w) != "Missing required parameter: strategy_id" {
			t.Fatalf("body %q: code=%d resp=%s", body, w.Code, w.Body.String())
		}
	}
}

func TestScanStrategy_NotFoundAndForbidden(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := tokenFor(t, "user-1")

	w := env.do(http.MethodPost, "/api/v1/ai-scan-strategy", tok, `{"strategy_id":"00000000-0000-0000-0000-000000000000"}`)
	if w.Code != http.StatusNotFound || errorOf(t, w) != "Strategy not found" {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodPost, "/api/v1/ai-scan-strategy", tok, `{"strategy_id":"`+env.private.ID+`"}`)
	if w.Code != http.StatusForbidden || errorOf(t, w) != "Access denied to this strategy" {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
}

func TestScanStrategy_InternalError(t *testing.T) {
	env := newTestEnv(t, stubRunner{err: errors.New("db exploded")})
	w := env.do(http.MethodPost, "/api/v1/ai-scan-strategy", tokenFor(t, "user-1"), `{"strategy_id":"`+env.owned.ID+`"}`)
	if w.Code != http.StatusInternalServerError || errorOf(t, w) != "Failed to scan strategy across markets" {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
}

func TestScanStrategy_EndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodPost, "/api/v1/ai-scan-strategy", tokenFor(t, "user-1"), `{"strategy_id":"`+env.owned.ID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}

	var res model.ScanResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.StrategyID != env.owned.ID || res.ScanID == "" {
		t.Fatalf("res=%+v", res)
	}
	if res.TotalMarketsScanned != 32 {
		t.Fatalf("total=%d want 32", res.TotalMarketsScanned)
	}
	if res.MatchingSetupsCount != 2 || len(res.MatchingSetups) != 2 {
		t.Fatalf("matches=%d", res.MatchingSetupsCount)
	}
	for _, s := range res.MatchingSetups {
		if s.Symbol != "BTC/USDT" || !(s.StopLoss < s.Entry && s.Entry < s.TakeProfit) {
			t.Fatalf("setup=%+v", s)
		}
	}
	if res.Outcomes[model.OutcomeSkippedTimeframe] != 32 {
		t.Fatalf("outcomes=%v", res.Outcomes)
	}

	// 扫描结果可查询
	w = env.do(http.MethodGet, "/api/v1/strategies/"+env.owned.ID+"/setups", tokenFor(t, "user-1"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("setups code=%d", w.Code)
	}
	var listed struct {
		Count  int           `json:"count"`
		Setups []model.Setup `json:"setups"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &listed)
	if listed.Count != 2 || listed.Setups[0].ScanID != res.ScanID {
		t.Fatalf("listed=%+v", listed)
	}
}

func TestScanStrategy_PublicStrategyByOtherUser(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodPost, "/api/v1/ai-scan-strategy", tokenFor(t, "user-1"),
		`{"strategy_id":"`+env.public.ID+`","markets":["AAPL"],"timeframes":["1h"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
}

func TestListSetupsAndStrategies(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := tokenFor(t, "user-1")

	if w := env.do(http.MethodGet, "/api/v1/strategies/"+env.private.ID+"/setups", tok, ""); w.Code != http.StatusForbidden {
		t.Fatalf("private setups code=%d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/strategies/missing/setups", tok, ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing setups code=%d", w.Code)
	}
	w := env.do(http.MethodGet, "/api/v1/strategies/"+env.owned.ID+"/setups", tok, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"setups":[]`) {
		t.Fatalf("empty setups code=%d body=%s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, "/api/v1/strategies", tok, "")
	var listed struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &listed)
	if w.Code != http.StatusOK || listed.Count != 2 {
		t.Fatalf("strategies code=%d body=%s", w.Code, w.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/health", "/ready", "/status", "/metrics"} {
		if w := env.do(http.MethodGet, path, "", ""); w.Code != http.StatusOK {
			t.Fatalf("%s code=%d", path, w.Code)
		}
	}
}
