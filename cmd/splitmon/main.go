package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/split.go/pkg/bridge/mqtt"
	"github.com/robotalks/split.go/pkg/bridge/msgs"
)

var (
	mqttURL = "mqtt://localhost:1883/split/"
	device  = "+"
)

func init() {
	if val := os.Getenv("SPLIT_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&device, "device", device, "Device ID to monitor.")
}

func describe(msg msgs.SerializableMessage) string {
	switch m := msg.(type) {
	case *msgs.Event:
		if ev, err := m.PeripheralEvent(); err == nil {
			return ev.String()
		}
	case *msgs.Command:
		if cmd, err := m.CentralCommand(); err == nil {
			return cmd.String()
		}
	}
	return msg.Serializable().String()
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q.Sub(device+"/#", mqtt.Handler(func(topic string, payload []byte) {
		if strings.HasSuffix(topic, "/"+mqtt.TopicStatus) && len(payload) == 0 {
			log.Printf("%s: offline", topic)
			return
		}
		msg, err := msgs.DecodeMessage(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %s", topic, describe(msg))
	}))
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
