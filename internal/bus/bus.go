// Package bus generalizes dastard's publish_data.go DataPublisher, which
// wraps a pair of czmq.Channeler PUB sockets (PubRecords, PubSummaries),
// into a single internal ready-signal fan-out bus. Where dastard published
// finished pulse records to a fixed pair of topics, Bus publishes framed,
// per-node wire records to a topic named after the node, so any number of
// external collaborators (the storage-writer process named in spec.md §1)
// can subscribe without the core needing to know they exist.
package bus

import (
	czmq "github.com/zeromq/goczmq"
)

// Bus owns one PUB-socket Channeler, matching the shape of dastard's
// DataPublisher.PubRecords.
type Bus struct {
	pub *czmq.Channeler
}

// New binds a PUB socket at endpoint (e.g. "tcp://*:5680"), exactly as
// dastard's DataPublisher construction binds PubRecords/PubSummaries.
func New(endpoint string) (*Bus, error) {
	ch := czmq.NewChanneler(endpoint)
	return &Bus{pub: ch}, nil
}

// Publish sends a length-framed record on topic (the node name), mirroring
// the two-frame [topic, payload] convention dastard's publisher uses so
// subscribers can filter by topic at the socket level.
func (b *Bus) Publish(topic string, payload []byte) {
	if b == nil || b.pub == nil {
		return
	}
	b.pub.SendChan <- [][]byte{[]byte(topic), payload}
}

// Close tears down the underlying channeler. Per the design notes, vendor
// and singleton facades need no teardown beyond this during shutdown.
func (b *Bus) Close() {
	if b == nil || b.pub == nil {
		return
	}
	b.pub.Destroy()
}
