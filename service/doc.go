// Package service drives the order book: it pulls events from a source,
// journals and applies them, snapshots the top of book and hands one record
// per event to every registered sink.
//
// BookService is the only writer of the book. Readers on other goroutines
// see the most recent state through Latest.
package service
