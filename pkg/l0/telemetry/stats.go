package telemetry

import (
	"context"

	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

// StatsSource provides link statistics. *comm.Router implements it.
type StatsSource interface {
	Stats() comm.Stats
}

// LinkStats reports the link counters on ch.
func LinkStats(ch comm.Channel, src StatsSource) Sensor {
	return Single(ch, func(context.Context) (*doc.Document, error) {
		return src.Stats().Document(), nil
	})
}
