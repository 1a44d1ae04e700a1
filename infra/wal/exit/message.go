package exit

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"mbp10/domain/orderbook"
	"mbp10/service"
)

// Level is one populated price row of a published snapshot.
type Level struct {
	Price decimal.Decimal `json:"px"`
	Size  uint64          `json:"sz"`
	Count uint64          `json:"ct"`
}

// Message is the JSON document published for each row. Prices are decimal
// strings; empty rows are omitted.
type Message struct {
	Seq     uint64          `json:"seq"`
	Row     uint64          `json:"row"`
	TsRecv  string          `json:"ts_recv"`
	Action  string          `json:"action"`
	Side    string          `json:"side"`
	Price   decimal.Decimal `json:"price"`
	Size    uint64          `json:"size"`
	OrderID uint64          `json:"order_id"`
	Bids    []Level         `json:"bids"`
	Asks    []Level         `json:"asks"`
}

func NewMessage(rec service.Record) Message {
	ev := rec.Event
	return Message{
		Seq:     rec.Seq,
		Row:     rec.Row,
		TsRecv:  ev.TsRecv,
		Action:  string(rune(ev.Action)),
		Side:    string(rune(ev.Side.Byte())),
		Price:   ev.Price.Decimal(),
		Size:    ev.Size,
		OrderID: ev.OrderID,
		Bids:    levels(rec.Snapshot.Bids[:]),
		Asks:    levels(rec.Snapshot.Asks[:]),
	}
}

func levels(rows []orderbook.Level) []Level {
	out := make([]Level, 0, len(rows))
	for _, l := range rows {
		if l.Count == 0 {
			break
		}
		out = append(out, Level{Price: l.Price.Decimal(), Size: l.Size, Count: l.Count})
	}
	return out
}

func EncodeMessage(rec service.Record) ([]byte, error) {
	return json.Marshal(NewMessage(rec))
}
