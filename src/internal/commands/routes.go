package commands

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/valyala/fasttemplate"

	"github.com/maksimkurb/tunroute/src/internal/networking"
)

const (
	RoutesTmplNetwork = "network"
	RoutesTmplDevice  = "device"
	RoutesTmplID      = "id"
	RoutesTmplGateway = "gateway"
	RoutesTmplMetric  = "metric"

	defaultRoutesFormat = "{{network}} via {{gateway}} dev {{device}} metric {{metric}}"
)

func CreateRoutesCommand() *RoutesCommand {
	rc := &RoutesCommand{
		fs: flag.NewFlagSet("routes", flag.ExitOnError),
	}

	rc.fs.StringVar(&rc.Family, "family", "4", "Address family to list: 4 or 6")
	rc.fs.StringVar(&rc.Format, "format", defaultRoutesFormat,
		"Output line template. Placeholders: {{network}}, {{device}}, {{id}}, {{gateway}}, {{metric}}")
	rc.fs.BoolVar(&rc.DefaultOnly, "default", false, "Only list default routes")

	return rc
}

// RoutesCommand prints the main forwarding table of the OS.
type RoutesCommand struct {
	fs          *flag.FlagSet
	ctx         *AppContext
	family      networking.Family
	template    *fasttemplate.Template
	Family      string
	Format      string
	DefaultOnly bool
}

func (c *RoutesCommand) Name() string {
	return c.fs.Name()
}

func (c *RoutesCommand) Init(args []string, ctx *AppContext) error {
	c.ctx = ctx

	if err := c.fs.Parse(args); err != nil {
		return err
	}

	family, err := networking.ParseFamily(c.Family)
	if err != nil {
		return err
	}
	c.family = family

	template, err := fasttemplate.NewTemplate(c.Format+"\n", "{{", "}}")
	if err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	c.template = template

	return nil
}

func (c *RoutesCommand) Run() error {
	system, err := c.ctx.openSystem()
	if err != nil {
		return err
	}
	defer closeSystem(system)

	entries, err := system.ForwardTable(c.family)
	if err != nil {
		return fmt.Errorf("failed to read %s forwarding table: %w", c.family, err)
	}

	out := c.ctx.stdout()
	for _, entry := range entries {
		if c.DefaultOnly && !entry.IsDefault() {
			continue
		}
		if _, err := c.template.Execute(out, c.placeholders(system, entry)); err != nil {
			return err
		}
	}
	return nil
}

func (c *RoutesCommand) placeholders(ifaces networking.InterfaceTable, entry networking.ForwardEntry) map[string]interface{} {
	device := entry.Interface.Encode()
	if info, err := ifaces.InterfaceByID(c.family, entry.Interface); err == nil {
		device = info.Name
	}

	gateway := "on-link"
	if entry.HasGateway() {
		gateway = entry.Gateway.String()
	}

	return map[string]interface{}{
		RoutesTmplNetwork: entry.Destination.String(),
		RoutesTmplDevice:  device,
		RoutesTmplID:      entry.Interface.Encode(),
		RoutesTmplGateway: gateway,
		RoutesTmplMetric:  strconv.FormatUint(uint64(entry.Metric), 10),
	}
}
