package commands

import (
	"flag"
	"fmt"

	"github.com/maksimkurb/tunroute/src/internal/config"
	"github.com/maksimkurb/tunroute/src/internal/log"
	"github.com/maksimkurb/tunroute/src/internal/networking"
	"github.com/maksimkurb/tunroute/src/internal/routing"
)

func CreateSelfCheckCommand() *SelfCheckCommand {
	gc := &SelfCheckCommand{
		fs: flag.NewFlagSet("self-check", flag.ExitOnError),
	}
	gc.fs.BoolVar(&gc.DumpConfig, "dump-config", false, "Print the effective configuration")
	return gc
}

// SelfCheckCommand validates the configuration and checks that every configured route
// can be resolved against the current state of the OS.
type SelfCheckCommand struct {
	fs         *flag.FlagSet
	ctx        *AppContext
	cfg        *config.Config
	DumpConfig bool
}

func (g *SelfCheckCommand) Name() string {
	return g.fs.Name()
}

func (g *SelfCheckCommand) Init(args []string, ctx *AppContext) error {
	g.ctx = ctx

	if err := g.fs.Parse(args); err != nil {
		return err
	}

	if cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath); err != nil {
		return err
	} else {
		g.cfg = cfg
	}

	return nil
}

// staticDefaults answers default route lookups from a one-shot evaluation.
type staticDefaults map[networking.Family]routing.ResolvedNode

func (s staticDefaults) DefaultRoute(family networking.Family) (routing.ResolvedNode, bool) {
	node, ok := s[family]
	return node, ok
}

func (g *SelfCheckCommand) Run() error {
	log.Infof("Running self-check...")

	if g.DumpConfig {
		buf, err := g.cfg.SerializeConfig()
		if err != nil {
			log.Errorf("Failed to serialize config: %v", err)
			return err
		}
		log.Infof("---------------- Configuration START -----------------")
		if _, err := g.ctx.stdout().Write(buf.Bytes()); err != nil {
			return err
		}
		log.Infof("----------------- Configuration END ------------------")
	}

	system, err := g.ctx.openSystem()
	if err != nil {
		return err
	}
	defer closeSystem(system)

	hasFailures := false
	defaults := staticDefaults{}

	for _, family := range enabledFamilies(g.cfg) {
		best, err := routing.BestDefaultRoute(family, system, system)
		switch {
		case err != nil:
			log.Errorf("[default-route] %s: failed to evaluate: %v", family, err)
			hasFailures = true
		case best == nil:
			log.Warnf("[default-route] %s: no default route", family)
		default:
			defaults[family] = *best
			log.Infof("[default-route] %s: %s", family, g.describe(system, family, *best))
		}
	}

	resolver := routing.NewNodeResolver(system, defaults)
	for i, route := range g.cfg.Routes {
		spec, err := route.RouteSpec()
		if err != nil {
			log.Errorf("[route] route[%d]: %v", i, err)
			hasFailures = true
			continue
		}

		family := spec.Family()
		node, err := resolver.Resolve(family, spec.Node)
		if err != nil {
			log.Errorf("[route] %s: %v", spec, err)
			hasFailures = true
			continue
		}
		log.Infof("[route] %s: %s", spec, g.describe(system, family, node))
	}

	if hasFailures {
		log.Errorf("Self-check completed with failures")
		return fmt.Errorf("self-check failed")
	}

	log.Infof("Self-check completed successfully")
	return nil
}

func (g *SelfCheckCommand) describe(ifaces networking.InterfaceTable, family networking.Family, node routing.ResolvedNode) string {
	info, err := ifaces.InterfaceByID(family, node.Interface)
	if err != nil {
		return node.String()
	}
	return fmt.Sprintf("%s (%s, mtu %d)", node, info.Name, info.MTU)
}
