package transport

import (
	"github.com/cuemby/igniteclient/pkg/config"
	"github.com/cuemby/igniteclient/pkg/event"
)

// NewPipeline assembles the transport pipeline in its fixed order:
// timestamp validation and backfill first (everything
// downstream must see a sane timestamp), then activity-delay tracking,
// session/ignition status synthesis, and finally the VIN topic gate.
func NewPipeline(cfg *config.Config, store InvalidEventStore) []event.Stage {
	return []event.Stage{
		NewTimestampValidator(cfg.DAM.TimestampValidatorExceptions, store, cfg.DAM.Database.StoreInvalidEvents),
		NewActivityDelay(cfg.DAM.UploadEventConfig),
		NewSessionStatus(RpmIgnitionConfig{
			IgnON:  cfg.DAM.UseRpmForIgnition.IgnON,
			IgnOFF: cfg.DAM.UseRpmForIgnition.IgnOFF,
		}),
		NewVinGate(),
	}
}
