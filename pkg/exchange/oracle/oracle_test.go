package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingSource struct{}

func (failingSource) Name() string { return "down" }
func (failingSource) Quote(ctx context.Context, name string) (float64, error) {
	return 0, errors.New("unreachable")
}

func TestGetExternalPriceAveragesSources(t *testing.T) {
	a := NewFixedSource("a", map[string]float64{"skin": 100.00})
	b := NewFixedSource("b", map[string]float64{"skin": 102.00})
	o := New(zap.NewNop(), []QuoteSource{a, b})

	price, err := o.GetExternalPrice(context.Background(), "skin")
	require.NoError(t, err)
	assert.Equal(t, 101.00, price)
}

func TestGetExternalPriceSkipsFailedSources(t *testing.T) {
	a := NewFixedSource("a", map[string]float64{"skin": 100.00})
	o := New(zap.NewNop(), []QuoteSource{failingSource{}, a})

	price, err := o.GetExternalPrice(context.Background(), "skin")
	require.NoError(t, err)
	assert.Equal(t, 100.00, price)
}

func TestGetExternalPriceAllSourcesDown(t *testing.T) {
	o := New(zap.NewNop(), []QuoteSource{failingSource{}})

	_, err := o.GetExternalPrice(context.Background(), "skin")
	assert.ErrorIs(t, err, ErrNoExternalPrice)
}

func TestFixedSourceSetPrice(t *testing.T) {
	s := NewFixedSource("test", nil)
	_, err := s.Quote(context.Background(), "skin")
	assert.Error(t, err)

	s.SetPrice("skin", 55.50)
	price, err := s.Quote(context.Background(), "skin")
	require.NoError(t, err)
	assert.Equal(t, 55.50, price)
}

func TestDeviation(t *testing.T) {
	assert.InDelta(t, 0.05, Deviation(105, 100), 1e-9)
	assert.InDelta(t, -0.05, Deviation(95, 100), 1e-9)
	assert.Zero(t, Deviation(100, 100))
	assert.Zero(t, Deviation(100, 0), "zero external must not divide")
}
