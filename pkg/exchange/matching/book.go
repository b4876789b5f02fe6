package matching

import (
	"container/heap"
	"sort"

	"github.com/gammazero/deque"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

// bookSide is one side of a book snapshot: a price heap over per-level FIFO
// queues. The snapshot is built from the store's resting orders just before
// matching and discarded afterwards; only the commit transaction writes back.
type bookSide struct {
	levels    map[float64]*deque.Deque[*model.Order]
	priceHeap *priceHeap
}

func newBookSide(side model.OrderSide, orders []*model.Order) *bookSide {
	less := func(a, b float64) bool { return a > b } // bids: best = highest
	if side == model.OrderSideSell {
		less = func(a, b float64) bool { return a < b } // asks: best = lowest
	}

	s := &bookSide{
		levels:    make(map[float64]*deque.Deque[*model.Order]),
		priceHeap: newPriceHeap(less),
	}

	// FIFO within a level: earlier orders enqueue first.
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	for _, o := range orders {
		s.add(o)
	}
	return s
}

func (s *bookSide) add(o *model.Order) {
	price := model.Round2(o.Price.InexactFloat64())
	if s.levels[price] == nil {
		s.levels[price] = &deque.Deque[*model.Order]{}
		heap.Push(s.priceHeap, price)
	}
	s.levels[price].PushBack(o)
}

// bestPrice returns the top of the heap, dropping levels drained by earlier
// iterations of the match loop.
func (s *bookSide) bestPrice() (float64, bool) {
	for {
		price, ok := s.priceHeap.peek()
		if !ok {
			return 0, false
		}
		q := s.levels[price]
		if q == nil || q.Len() == 0 {
			heap.Pop(s.priceHeap)
			delete(s.levels, price)
			continue
		}
		return price, true
	}
}

func (s *bookSide) popFront(price float64) *model.Order {
	q := s.levels[price]
	if q == nil || q.Len() == 0 {
		return nil
	}
	o := q.Front()
	q.PopFront()
	return o
}

func (s *bookSide) pushFront(price float64, o *model.Order) {
	if s.levels[price] == nil {
		s.levels[price] = &deque.Deque[*model.Order]{}
		heap.Push(s.priceHeap, price)
	}
	s.levels[price].PushFront(o)
}
