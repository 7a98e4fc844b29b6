package splitpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListCurrentOnEmpty(t *testing.T) {
	var l List
	_, ok := l.Current()
	assert.False(t, ok)
	assert.True(t, l.Exhausted())
}

func TestListAddResetsCurrent(t *testing.T) {
	var l List
	l.Add(Point{Value: 10, Type: Size})
	l.Advance()
	assert.True(t, l.Exhausted())

	l.Add(Point{Value: 20, Type: Duration})
	p, ok := l.Current()
	assert.True(t, ok)
	assert.Equal(t, Point{Value: 10, Type: Size}, p)
	assert.Equal(t, 2, l.Len())
}

func TestListAdvanceConsumesUseOncePoint(t *testing.T) {
	var l List
	l.Add(Point{Value: 1, Type: Size, UseOnce: true})
	l.Add(Point{Value: 2, Type: Size})

	p, ok := l.Current()
	assert.True(t, ok)
	assert.Equal(t, int64(1), p.Value)

	l.Advance()
	p, ok = l.Current()
	assert.True(t, ok)
	assert.Equal(t, int64(2), p.Value)

	l.Advance()
	assert.True(t, l.Exhausted())
}
