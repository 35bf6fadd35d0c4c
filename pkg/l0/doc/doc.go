// Package doc provides the schema-less Document carried as message
// payload and its msgpack encoding.
//
// A Document maps string keys to Values. Producers and consumers agree
// out-of-band on which keys a channel carries.
package doc
