// Package orderbook reconstructs a market-by-price book from a
// market-by-order event stream. It keeps an order index keyed by order id
// and one B-tree price ladder per side carrying only aggregates
// (total size, order count), and materializes fixed-depth MBP-10
// snapshots on demand.
//
// The book is a single-writer state machine. It performs no I/O, takes no
// locks and recognizes no error conditions: late, duplicate or unknown
// references from a live feed are absorbed as no-ops.
package orderbook
