package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"Attendly/internal/model"
)

// Seed memory 模式的初始数据
type Seed struct {
	Registrations []model.Registration   `json:"registrations"`
	Strategies    []model.StrategyConfig `json:"strategies"`
}

// LoadSeed 读取 JSON 种子文件
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Apply 写入内存存储；策略同样要通过校验
func (s *Seed) Apply(ctx context.Context, regs *MemoryRegistrationDirectory, strategies StrategyStore) error {
	regs.Put(s.Registrations...)
	for i := range s.Strategies {
		cfg := &s.Strategies[i]
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("seed strategy for event %d: %w", cfg.EventID, err)
		}
		if err := strategies.Save(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}
