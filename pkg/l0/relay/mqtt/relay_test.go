package mqtt

import (
	"bytes"
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

func TestConvert(t *testing.T) {
	d := doc.New().
		Set("b", doc.Bool(true)).
		Set("i", doc.Int(-3)).
		Set("u", doc.Uint(200)).
		Set("f", doc.Float(0.25)).
		Set("s", doc.String("pong")).
		Set("n", doc.Nil()).
		Set("m", doc.Map(doc.New().Set("x", doc.Float(1.5)))).
		Set("a", doc.Array(doc.Int(1), doc.String("two")))
	payload, err := Marshal(d)
	require.NoError(t, err)
	back, err := Unmarshal(payload)
	require.NoError(t, err)
	require.True(t, d.Equal(back), "%s != %s", d, back)
	require.Equal(t, []string{"a", "b", "f", "i", "m", "n", "s", "u"}, back.Keys())

	f, _ := back.Get("f")
	require.Equal(t, doc.KindFloat, f.Kind())
	big := doc.New().Set("nan", doc.Float(math.NaN())).Set("huge", doc.Float(1e300))
	back, err = FromStruct(ToStruct(big))
	require.NoError(t, err)
	huge, _ := back.Get("huge")
	require.Equal(t, doc.KindFloat, huge.Kind())

	_, err = Unmarshal([]byte{0xff, 0xff})
	require.Error(t, err)
}

func TestCommandTopic(t *testing.T) {
	require.Equal(t, "ch/254", ChannelTopic(comm.ChannelControl))
	require.Equal(t, "cmd/1", CommandTopic(comm.ChannelMotor))
	ch, err := ParseCommandTopic("cmd/254")
	require.NoError(t, err)
	require.Equal(t, comm.ChannelControl, ch)
	for _, topic := range []string{"ch/1", "cmd/", "cmd/256", "cmd/x"} {
		_, err := ParseCommandTopic(topic)
		require.Error(t, err, topic)
	}
}

func TestRelay(t *testing.T) {
	q, c := newFakeQueue("bridge/")
	var link bytes.Buffer
	router := comm.NewRouter(&link, comm.NewRingBuffer(256))
	r := NewRelay(q, router, comm.ChannelEnvironment, comm.ChannelControl)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	require.Eventually(t, func() bool {
		return router.Handler(comm.ChannelControl) != nil
	}, time.Second, time.Millisecond)

	// device -> mqtt
	reading := doc.New().Set("t", doc.Float(21.5))
	router.Handler(comm.ChannelEnvironment).HandleDocument(ctx, comm.ChannelEnvironment, reading)
	pubs := c.publishedRecords()
	require.Len(t, pubs, 1)
	require.Equal(t, "bridge/ch/2", pubs[0].topic)
	got, err := Unmarshal(pubs[0].payload)
	require.NoError(t, err)
	require.True(t, reading.Equal(got))

	// mqtt -> device
	payload, err := Marshal(doc.New().Set("cmd", doc.String("ping")))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		c.lock.Lock()
		defer c.lock.Unlock()
		return len(c.subscribed) > 0
	}, time.Second, time.Millisecond)
	q.deliver("bridge/cmd/254", payload)
	q.deliver("bridge/cmd/bad", payload)

	loop := comm.NewRouter(io.Discard, comm.NewRingBuffer(256))
	var cmd *doc.Document
	loop.Subscribe(comm.ChannelControl, comm.HandlerFunc(func(ctx context.Context, ch comm.Channel, d *doc.Document) {
		cmd = d
	}))
	for _, b := range link.Bytes() {
		loop.Buffer.Push(b)
	}
	require.Equal(t, 1, loop.Pump(context.Background()))
	v, _ := cmd.Get("cmd")
	require.True(t, doc.String("ping").Equal(v))

	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}
