package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGetAndExpiry(t *testing.T) {
	c := NewCache(50 * time.Millisecond)
	c.Set("k1", 42)

	v, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("k1")
	assert.False(t, ok)
}

func TestCache_Clear(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("k1", "v1")
	c.Clear()
	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestKey_ChangesWithPositionContent(t *testing.T) {
	p1 := []PositionAggregate{{PositionID: "p1", MarketValue: 100, Exposure: 100}}
	p2 := []PositionAggregate{{PositionID: "p1", MarketValue: 200, Exposure: 200}}
	assert.NotEqual(t, Key("port1", "2026-07-30", p1), Key("port1", "2026-07-30", p2))
}
