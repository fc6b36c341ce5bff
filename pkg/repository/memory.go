package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"StrategyRadar/pkg/model"
)

// MemoryRepository 内存存储，用于开发和测试
type MemoryRepository struct {
	strategies map[string]*model.Strategy
	setups     map[string][]model.Setup // strategyID -> setups
	mutex      sync.RWMutex
}

// NewMemoryRepository 创建内存存储
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		strategies: make(map[string]*model.Strategy),
		setups:     make(map[string][]model.Setup),
	}
}

// SaveStrategy 保存策略
func (r *MemoryRepository) SaveStrategy(_ context.Context, s *model.Strategy) error {
	if s == nil {
		return fmt.Errorf("策略为空")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	cp := copyStrategy(s)
	r.strategies[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetStrategy(_ context.Context, id string) (*model.Strategy, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, ok := r.strategies[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyStrategy(s)
	return &cp, nil
}

func (r *MemoryRepository) ListVisibleStrategies(_ context.Context, userID string) ([]model.Strategy, error) {
	return r.filter(func(s *model.Strategy) bool { return s.VisibleTo(userID) }), nil
}

func (r *MemoryRepository) ListAutoScanStrategies(_ context.Context) ([]model.Strategy, error) {
	return r.filter(func(s *model.Strategy) bool { return s.AutoScan }), nil
}

func (r *MemoryRepository) filter(keep func(*model.Strategy) bool) []model.Strategy {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]model.Strategy, 0)
	for _, s := range r.strategies {
		if keep(s) {
			out = append(out, copyStrategy(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepository) UpdateStrategyParsed(_ context.Context, id string, parsed *model.ParsedStrategy, hash string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, ok := r.strategies[id]
	if !ok {
		return ErrNotFound
	}
	if parsed != nil {
		p := *parsed
		s.AIParsed = &p
	} else {
		s.AIParsed = nil
	}
	s.AIParsedHash = hash
	s.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) ReplaceSetups(_ context.Context, strategyID, scanID string, setups []model.Setup) error {
	if scanID == "" {
		return fmt.Errorf("scanID为空")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	next := make([]model.Setup, 0, len(setups))
	for _, st := range setups {
		if st.ID == "" {
			st.ID = uuid.New().String()
		}
		st.StrategyID = strategyID
		st.ScanID = scanID
		if st.CreatedAt.IsZero() {
			st.CreatedAt = now
		}
		st.Reasons = append([]string(nil), st.Reasons...)
		next = append(next, st)
	}
	// 同一批次重复写入时保留已有行
	for _, old := range r.setups[strategyID] {
		if old.ScanID == scanID {
			next = append(next, old)
		}
	}
	if len(next) == 0 {
		delete(r.setups, strategyID)
		return nil
	}
	r.setups[strategyID] = next
	return nil
}

func (r *MemoryRepository) ListSetups(_ context.Context, strategyID string) ([]model.Setup, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := append([]model.Setup(nil), r.setups[strategyID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func (r *MemoryRepository) Ping(context.Context) error {
	return nil
}

func copyStrategy(s *model.Strategy) model.Strategy {
	cp := *s
	if s.AIParsed != nil {
		p := *s.AIParsed
		cp.AIParsed = &p
	}
	return cp
}
