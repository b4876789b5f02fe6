package matching

// priceHeap implements heap.Interface over distinct price levels. The less
// func picks the direction: bids use a max-heap, asks a min-heap.
type priceHeap struct {
	prices []float64
	less   func(a, b float64) bool
	seen   map[float64]bool
}

func newPriceHeap(less func(a, b float64) bool) *priceHeap {
	return &priceHeap{
		less: less,
		seen: make(map[float64]bool),
	}
}

func (h priceHeap) Len() int { return len(h.prices) }

func (h priceHeap) Less(i, j int) bool { return h.less(h.prices[i], h.prices[j]) }

func (h priceHeap) Swap(i, j int) { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) {
	price := x.(float64)
	if !h.seen[price] {
		h.seen[price] = true
		h.prices = append(h.prices, price)
	}
}

func (h *priceHeap) Pop() any {
	n := len(h.prices)
	price := h.prices[n-1]
	h.prices = h.prices[:n-1]
	delete(h.seen, price)
	return price
}

func (h *priceHeap) peek() (float64, bool) {
	if len(h.prices) == 0 {
		return 0, false
	}
	return h.prices[0], true
}
