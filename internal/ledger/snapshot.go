package ledger

import "github.com/shopspring/decimal"

// normalizeSnapshot fills fields an older document may lack and recomputes
// the derived ones (reserved cash, next order id).
func normalizeSnapshot(s Snapshot) Snapshot {
	out := cloneSnapshot(s)
	positions := make(map[string]Position, len(out.Positions))
	for key, p := range out.Positions {
		sym := NormalizeSymbol(key)
		if sym == "" || !p.Quantity.IsPositive() {
			continue
		}
		p.Symbol = sym
		positions[sym] = p
	}
	out.Positions = positions
	if out.OpenOrders == nil {
		out.OpenOrders = []OpenOrder{}
	}
	if out.TradeHistory == nil {
		out.TradeHistory = []TradeRecord{}
	}

	reserved := decimal.Zero
	var maxID int64
	for i, o := range out.OpenOrders {
		out.OpenOrders[i].Symbol = NormalizeSymbol(o.Symbol)
		if o.Kind == "" {
			out.OpenOrders[i].Kind = KindLimit
		}
		if o.ID > maxID {
			maxID = o.ID
		}
		if o.IsOpen() && o.Side == SideBuy {
			reserved = reserved.Add(o.Amount)
		}
	}
	out.Reserved = reserved
	if out.NextOrderID <= maxID {
		out.NextOrderID = maxID + 1
	}
	if out.NextOrderID < 1 {
		out.NextOrderID = 1
	}
	return out
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	out.Positions = make(map[string]Position, len(s.Positions))
	for k, v := range s.Positions {
		out.Positions[k] = v
	}
	if s.OpenOrders != nil {
		out.OpenOrders = make([]OpenOrder, len(s.OpenOrders))
		for i, o := range s.OpenOrders {
			out.OpenOrders[i] = cloneOrder(o)
		}
	}
	out.TradeHistory = cloneTrades(s.TradeHistory)
	return out
}

func cloneOrder(o OpenOrder) OpenOrder {
	if o.LimitPrice != nil {
		v := *o.LimitPrice
		o.LimitPrice = &v
	}
	if o.FillPrice != nil {
		v := *o.FillPrice
		o.FillPrice = &v
	}
	if o.FilledAt != nil {
		v := *o.FilledAt
		o.FilledAt = &v
	}
	return o
}

func cloneTrades(in []TradeRecord) []TradeRecord {
	if in == nil {
		return nil
	}
	out := make([]TradeRecord, len(in))
	for i, t := range in {
		if t.OrderID != nil {
			id := *t.OrderID
			t.OrderID = &id
		}
		out[i] = t
	}
	return out
}
