package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/robotalks/bridge.go/pkg/l0/env"
	"github.com/robotalks/bridge.go/pkg/l0/relay/mqtt"
)

var (
	mqttURL = env.Default().MQTT.URL
)

func init() {
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()

	q, err := mqtt.NewQueueFromURL(mqttURL, "bridge-mon-"+uuid.NewString())
	if err != nil {
		glog.Exit(err)
	}

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		if !strings.HasPrefix(topic, mqtt.ChannelTopicPrefix) && !strings.HasPrefix(topic, mqtt.CommandTopicPrefix) {
			return
		}
		d, err := mqtt.Unmarshal(payload)
		if err != nil {
			glog.Warningf("%s: bad message: %v", topic, err)
			return
		}
		glog.Infof("%s: %s", topic, d)
	}))

	token := q.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		glog.Exit(err)
	}
	defer q.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh
}
