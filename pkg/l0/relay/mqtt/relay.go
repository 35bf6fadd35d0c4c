// Package mqtt relays router channels to an MQTT broker.
//
// Documents received on a relayed channel n are published as protobuf
// encoded google.protobuf.Struct on <prefix>ch/<n>. Messages on
// <prefix>cmd/<n> are decoded the same way and published on channel n.
package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

// Topic names relative to the prefix.
const (
	ChannelTopicPrefix = "ch/"
	CommandTopicPrefix = "cmd/"
)

// ChannelTopic is the topic documents of ch are published on.
func ChannelTopic(ch comm.Channel) string {
	return ChannelTopicPrefix + strconv.Itoa(int(ch))
}

// CommandTopic is the topic relayed to ch.
func CommandTopic(ch comm.Channel) string {
	return CommandTopicPrefix + strconv.Itoa(int(ch))
}

// ParseCommandTopic extracts the channel from a command topic.
func ParseCommandTopic(topic string) (comm.Channel, error) {
	if !strings.HasPrefix(topic, CommandTopicPrefix) {
		return 0, fmt.Errorf("not a command topic: %q", topic)
	}
	n, err := strconv.ParseUint(topic[len(CommandTopicPrefix):], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid channel in topic %q", topic)
	}
	return comm.Channel(n), nil
}

// Router is the part of *comm.Router used by Relay.
type Router interface {
	Subscribe(comm.Channel, comm.Handler)
	Publish(comm.Channel, *doc.Document) error
}

// Relay forwards between a Router and a Queue.
type Relay struct {
	Queue    *Queue
	Router   Router
	Channels []comm.Channel
}

// NewRelay creates a Relay.
func NewRelay(q *Queue, r Router, channels ...comm.Channel) *Relay {
	return &Relay{Queue: q, Router: r, Channels: channels}
}

// Name implements Named.
func (r *Relay) Name() string {
	return "mqtt-relay"
}

// Run implements Runnable.
func (r *Relay) Run(ctx context.Context) error {
	for _, ch := range r.Channels {
		r.Router.Subscribe(ch, comm.HandlerFunc(r.forward))
	}
	r.Queue.Sub(CommandTopicPrefix+"+", r.command)

	token := r.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer r.Queue.Close()
	<-ctx.Done()
	return ctx.Err()
}

func (r *Relay) forward(ctx context.Context, ch comm.Channel, d *doc.Document) {
	payload, err := Marshal(d)
	if err != nil {
		glog.Warningf("relay channel %d: %v", ch, err)
		return
	}
	// Not waiting for the token: this runs on the router task.
	r.Queue.Pub(ChannelTopic(ch), payload)
}

func (r *Relay) command(topic string, payload []byte) {
	ch, err := ParseCommandTopic(topic)
	if err != nil {
		glog.Warning(err)
		return
	}
	d, err := Unmarshal(payload)
	if err != nil {
		glog.Warningf("relay %q: %v", topic, err)
		return
	}
	if err := r.Router.Publish(ch, d); err != nil {
		glog.Warningf("relay %q: %v", topic, err)
	}
}
