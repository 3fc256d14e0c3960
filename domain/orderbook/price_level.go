package orderbook

// PriceLevel is the FIFO queue of resting orders at a single price.
type PriceLevel struct {
	Price int64

	head *Order
	tail *Order

	TotalQty   int64
	OrderCount int
}

// Enqueue appends o to the tail of the level's FIFO.
func (p *PriceLevel) Enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.TotalQty += o.Remaining()
	p.OrderCount++
}

// Fill decrements the level's aggregate volume by a fill against the
// current head. Must be called before PopHead: by the time a fully
// filled head is popped its own Remaining() is already zero, so
// TotalQty has to be adjusted at fill time, not at removal time.
func (p *PriceLevel) Fill(qty int64) {
	p.TotalQty -= qty
}

// PopHead removes and returns the FIFO head.
func (p *PriceLevel) PopHead() *Order {
	o := p.head
	if o == nil {
		return nil
	}

	p.head = o.next
	if p.head != nil {
		p.head.prev = nil
	} else {
		p.tail = nil
	}

	o.next = nil
	o.prev = nil
	p.OrderCount--

	return o
}

// Empty reports whether the level holds no orders.
func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Head returns the FIFO head without removing it.
func (p *PriceLevel) Head() *Order {
	return p.head
}
