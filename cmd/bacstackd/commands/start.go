package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/service"
	"github.com/bactalk/bacstack/internal/station"
	"github.com/bactalk/bacstack/internal/tag"
	"github.com/bactalk/bacstack/pkg/admin"
	"github.com/bactalk/bacstack/pkg/config"
	prommetrics "github.com/bactalk/bacstack/pkg/metrics/prometheus"
	"github.com/bactalk/bacstack/pkg/objects"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the BACstack station",
	Long: `Start a BACnet station with the specified configuration.

The station binds its configured data link, registers as a foreign
device or serves as a BBMD when so configured, and answers the
application services against its object database until interrupted.

Examples:
  # Start with the default config location
  bacstackd start

  # Start with a custom config file
  bacstackd start --config /etc/bacstack/config.yaml

  # Override any option through the environment
  BACSTACK_LOGGING_LEVEL=DEBUG bacstackd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	promReg := prometheus.NewRegistry()
	collectors := prommetrics.NewCollectors(promReg)

	db := objects.NewStore()
	seedDeviceObject(db, cfg)

	st, err := station.New(cfg, db, objects.NewMemoryFileStore(), simpleFactory{}, collectors.Registry())
	if err != nil {
		return err
	}
	if err := st.Start(ctx); err != nil {
		return err
	}

	var adminSrv *admin.Server
	if cfg.Metrics.Enabled {
		adminSrv = admin.New(cfg.Metrics, st, promReg)
		adminSrv.Start()
	}

	logger.Info("bacstackd started",
		logger.ObjectInst(cfg.InstanceNumber),
		"version", Version)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if adminSrv != nil {
		if err := adminSrv.Stop(shutdownCtx); err != nil {
			logger.Warn("admin server shutdown failed", logger.Err(err))
		}
	}
	return st.Stop(shutdownCtx)
}

// seedDeviceObject installs the station's own Device object so peers
// that walk the object list see the standard identity properties.
func seedDeviceObject(db *objects.Store, cfg *config.Config) {
	dev := objects.NewSimpleObject(tag.ObjectIdentifier{Type: 8, Instance: cfg.InstanceNumber})
	dev.Set(service.PropObjectName, tag.EncodeCharacterString("bacstackd"), false)
	dev.Set(service.PropObjectType, tag.EncodeEnumerated(8), false)
	_ = db.Add(dev)
}

// simpleFactory satisfies objects.Factory by instantiating bare
// SimpleObjects for CreateObject requests.
type simpleFactory struct{}

func (simpleFactory) Create(objType uint16, instance *uint32, initial map[uint32][]byte) (objects.Object, error) {
	inst := uint32(1)
	if instance != nil {
		inst = *instance
	}
	obj := objects.NewSimpleObject(tag.ObjectIdentifier{Type: objType, Instance: inst})
	for pid, value := range initial {
		obj.Set(pid, value, false)
	}
	return obj, nil
}
