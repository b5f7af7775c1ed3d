// Package increment 实现按价格分档的最小加价表。
package increment

import (
	"fmt"
	"sort"
)

// Tier 半开区间 [Min, Max) 对应固定加价；Max 为 0 表示无上界（只允许最后一档）。
type Tier struct {
	Min       int64
	Max       int64
	Increment int64
}

// Schedule 按 Min 升序、首尾相接的分档表。
type Schedule struct {
	tiers []Tier
}

// Default 是全站统一使用的加价表（整数货币单位）。
func Default() Schedule {
	s, err := New([]Tier{
		{Min: 0, Max: 100, Increment: 2},
		{Min: 100, Max: 500, Increment: 5},
		{Min: 500, Max: 1000, Increment: 10},
		{Min: 1000, Max: 5000, Increment: 25},
		{Min: 5000, Max: 10000, Increment: 50},
		{Min: 10000, Max: 0, Increment: 100},
	})
	if err != nil {
		panic(err)
	}
	return s
}

// New 校验并构造加价表：从 0 开始、区间连续、加价为正、只有最后一档开放。
func New(tiers []Tier) (Schedule, error) {
	if len(tiers) == 0 {
		return Schedule{}, fmt.Errorf("increment schedule must have at least one tier")
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	if sorted[0].Min != 0 {
		return Schedule{}, fmt.Errorf("first tier must start at 0, got %d", sorted[0].Min)
	}
	for i, t := range sorted {
		if t.Increment <= 0 {
			return Schedule{}, fmt.Errorf("tier %d: increment must be > 0", i)
		}
		last := i == len(sorted)-1
		if last {
			if t.Max != 0 {
				return Schedule{}, fmt.Errorf("last tier must be open-ended")
			}
			continue
		}
		if t.Max <= t.Min {
			return Schedule{}, fmt.Errorf("tier %d: max %d must be > min %d", i, t.Max, t.Min)
		}
		if sorted[i+1].Min != t.Max {
			return Schedule{}, fmt.Errorf("tier %d: gap or overlap at %d", i, t.Max)
		}
	}
	return Schedule{tiers: sorted}, nil
}

// For 返回当前价格下一口出价的最小加价。边界价格归属 Min 等于它的那一档。
// 负数价格按 0 处理。
func (s Schedule) For(price int64) int64 {
	if len(s.tiers) == 0 {
		return Default().For(price)
	}
	if price < 0 {
		price = 0
	}
	// 找第一个 Min > price 的档位，前一档即命中。
	i := sort.Search(len(s.tiers), func(i int) bool { return s.tiers[i].Min > price })
	return s.tiers[i-1].Increment
}

// MinNext 返回 price 之后的最低有效出价。
func (s Schedule) MinNext(price int64) int64 {
	return price + s.For(price)
}

// Tiers 返回分档表副本。
func (s Schedule) Tiers() []Tier {
	out := make([]Tier, len(s.tiers))
	copy(out, s.tiers)
	return out
}
