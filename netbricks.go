package netbricks

import (
	"context"
	"encoding/json"

	"github.com/netbricks/netbricks/engine/config"
	"github.com/netbricks/netbricks/engine/definition"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/host"
	"github.com/netbricks/netbricks/engine/mainloop"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/resource"
	"github.com/pkg/errors"
)

// Bridge is the game loop connecting a game engine to the replication service
type Bridge = mainloop.GameLoop

// NewBridge creates a bridge for engine, reading main.definition, bridge.ini and the entity descriptors from dataDir
//
// hub connects in-process peers; nil gives the bridge a hub of its own.
func NewBridge(engine host.Engine, dataDir string, hub *replication.Hub) (*Bridge, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}
	config.SetDataDir(dataDir)
	gwlog.SetLevel(gwlog.ParseLevel(cfg.Bridge.LogLevel))
	gwlog.Infof("Read bridge config: \n%s", config.DumpPretty(cfg))

	store, err := resource.OpenDirectory(dataDir)
	if err != nil {
		return nil, errors.WithMessagef(err, "open data directory %s", dataDir)
	}
	return mainloop.New(mainloop.Options{
		Engine: engine,
		Loader: definition.NewLoader(store),
		Config: cfg,
		Hub:    hub,
	}), nil
}

// Run creates a bridge and runs it until it exits or ctx is done
//
// The network starts when the game sends a NETMODE= message.
func Run(ctx context.Context, engine host.Engine, dataDir string) error {
	bridge, err := NewBridge(engine, dataDir, nil)
	if err != nil {
		return err
	}
	return bridge.Run(ctx)
}

// DescriptorSchema returns the JSON schema of actor.definition files
func DescriptorSchema() ([]byte, error) {
	return json.MarshalIndent(definition.Schema(), "", "  ")
}

// TemplateSchema returns the JSON schema of template files
func TemplateSchema() ([]byte, error) {
	return json.MarshalIndent(definition.TemplateSchema(), "", "  ")
}
