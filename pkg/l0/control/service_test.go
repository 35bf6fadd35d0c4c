package control

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

type published struct {
	ch  comm.Channel
	doc *doc.Document
}

type recordPublisher struct {
	lock sync.Mutex
	docs []published
}

func (p *recordPublisher) Publish(ch comm.Channel, d *doc.Document) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.docs = append(p.docs, published{ch: ch, doc: d})
	return nil
}

func (p *recordPublisher) published() []published {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]published(nil), p.docs...)
}

func request(cmd string) *doc.Document {
	return doc.New().Set(KeyCommand, doc.String(cmd))
}

func requireStatus(t *testing.T, d *doc.Document, status int64) {
	v, ok := d.Get(KeyStatus)
	require.True(t, ok)
	require.True(t, doc.Int(status).Equal(v), "status %s", v)
	ts, ok := d.Get(KeyTimestamp)
	require.True(t, ok)
	_, ok = ts.AsUint()
	require.True(t, ok)
}

func TestPing(t *testing.T) {
	pub := &recordPublisher{}
	s := NewService(pub, "dev0", 0)
	s.HandleDocument(context.Background(), comm.ChannelControl, request("ping"))
	require.Equal(t, 1, s.Process(context.Background()))

	docs := pub.published()
	require.Len(t, docs, 1)
	require.Equal(t, comm.ChannelControl, docs[0].ch)
	resp := docs[0].doc
	require.Equal(t, []string{"msg", KeyStatus, KeyTimestamp}, resp.Keys())
	msg, _ := resp.Get("msg")
	require.True(t, doc.String("pong").Equal(msg))
	requireStatus(t, resp, StatusOK)
}

func TestStatus(t *testing.T) {
	pub := &recordPublisher{}
	s := NewService(pub, "dev0", 0)
	s.AddStatus("motors", func() *doc.Document {
		return doc.New().Set("dropped", doc.Uint(3))
	})
	s.HandleDocument(context.Background(), comm.ChannelControl, request("status"))
	s.Process(context.Background())

	docs := pub.published()
	require.Len(t, docs, 1)
	resp := docs[0].doc
	requireStatus(t, resp, StatusOK)
	id, _ := resp.Get("id")
	require.True(t, doc.String("dev0").Equal(id))
	_, ok := resp.Get("uptime_ms")
	require.True(t, ok)
	motors, ok := resp.Get("motors")
	require.True(t, ok)
	m, ok := motors.AsMap()
	require.True(t, ok)
	dropped, _ := m.Get("dropped")
	require.True(t, doc.Int(3).Equal(dropped))
}

func TestNoResponse(t *testing.T) {
	testCases := []struct {
		name string
		req  *doc.Document
	}{
		{"unknown", request("get_water_level")},
		{"missing", doc.New().Set("command", doc.String("ping"))},
		{"not string", doc.New().Set(KeyCommand, doc.Int(1))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &recordPublisher{}
			s := NewService(pub, "dev0", 0)
			s.HandleDocument(context.Background(), comm.ChannelControl, tc.req)
			require.Equal(t, 1, s.Process(context.Background()))
			require.Empty(t, pub.published())
		})
	}
}

func TestCustomCommand(t *testing.T) {
	pub := &recordPublisher{}
	s := NewService(pub, "dev0", 0)
	s.Register("echo", func(ctx context.Context, req, resp *doc.Document) bool {
		v, _ := req.Get("arg")
		resp.Set("arg", v)
		return true
	})
	s.Register("quiet", func(ctx context.Context, req, resp *doc.Document) bool {
		return false
	})
	s.HandleDocument(context.Background(), comm.ChannelControl, request("echo").Set("arg", doc.Float(1.5)))
	s.HandleDocument(context.Background(), comm.ChannelControl, request("quiet"))
	require.Equal(t, 2, s.Process(context.Background()))
	docs := pub.published()
	require.Len(t, docs, 1)
	arg, _ := docs[0].doc.Get("arg")
	require.True(t, doc.Float(1.5).Equal(arg))
	requireStatus(t, docs[0].doc, StatusOK)
}

func TestResponseTooLarge(t *testing.T) {
	pub := &recordPublisher{}
	s := NewService(pub, "dev0", 0)
	s.MaxResponseSize = 64
	s.Register("dump", func(ctx context.Context, req, resp *doc.Document) bool {
		resp.Set("data", doc.String(strings.Repeat("x", 100)))
		return true
	})
	s.HandleDocument(context.Background(), comm.ChannelControl, request("dump"))
	s.Process(context.Background())
	docs := pub.published()
	require.Len(t, docs, 1)
	requireStatus(t, docs[0].doc, StatusError)
	msg, _ := docs[0].doc.Get(KeyError)
	require.True(t, doc.String(MsgResponseTooLarge).Equal(msg))
}

func TestQueueFull(t *testing.T) {
	pub := &recordPublisher{}
	s := NewService(pub, "dev0", 2)
	for i := 0; i < 4; i++ {
		s.HandleDocument(context.Background(), comm.ChannelControl, request("ping"))
	}
	require.Equal(t, uint64(2), s.Dropped())
	require.Equal(t, 2, s.Process(context.Background()))
	require.Len(t, pub.published(), 2)
}

func TestPingOverLink(t *testing.T) {
	var out bytes.Buffer
	r := comm.NewRouter(&out, comm.NewRingBuffer(256))
	s := NewService(r, "dev0", 0)
	r.Subscribe(comm.ChannelControl, s)
	for _, b := range (&comm.Message{Channel: comm.ChannelControl, Payload: request("ping").Encode()}).Bytes(comm.DefaultChecksum) {
		r.Buffer.Push(b)
	}
	require.Equal(t, 1, r.Pump(context.Background()))
	s.Process(context.Background())

	host := comm.NewRouter(&bytes.Buffer{}, comm.NewRingBuffer(256))
	var resp *doc.Document
	host.Subscribe(comm.ChannelControl, comm.HandlerFunc(func(ctx context.Context, ch comm.Channel, d *doc.Document) {
		resp = d
	}))
	for _, b := range out.Bytes() {
		host.Buffer.Push(b)
	}
	require.Equal(t, 1, host.Pump(context.Background()))
	require.NotNil(t, resp)
	requireStatus(t, resp, StatusOK)
}

func TestTriggeredByLoop(t *testing.T) {
	pub := &recordPublisher{}
	s := NewService(pub, "dev0", 0)
	loop := fx.NewLoop()
	loop.Interval = time.Hour
	loop.Add(s)
	loop.AddRunnable(fx.RunFunc(func(ctx context.Context) error {
		s.HandleDocument(ctx, comm.ChannelControl, request("ping"))
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()
	require.Eventually(t, func() bool {
		return len(pub.published()) == 1
	}, time.Second, time.Millisecond)
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}
