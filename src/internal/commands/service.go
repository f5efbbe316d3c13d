package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maksimkurb/tunroute/src/internal/api"
	"github.com/maksimkurb/tunroute/src/internal/config"
	"github.com/maksimkurb/tunroute/src/internal/log"
)

func CreateServiceCommand() *ServiceCommand {
	sc := &ServiceCommand{
		fs: flag.NewFlagSet("service", flag.ExitOnError),
	}

	sc.fs.BoolVar(&sc.NoAPI, "no-api", false, "Do not start the HTTP API even if it is enabled in the configuration")

	return sc
}

type ServiceCommand struct {
	fs    *flag.FlagSet
	cfg   *config.Config
	ctx   *AppContext
	NoAPI bool

	serviceMgr *ServiceManager

	// Runner for crash isolation
	apiRunner *Supervisor
}

func (s *ServiceCommand) Name() string {
	return s.fs.Name()
}

func (s *ServiceCommand) Init(args []string, ctx *AppContext) error {
	s.ctx = ctx

	if err := s.fs.Parse(args); err != nil {
		return err
	}

	if cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath); err != nil {
		return err
	} else {
		s.cfg = cfg
	}

	if s.cfg.General.Verbose {
		log.SetVerbose(true)
	}

	s.serviceMgr = NewServiceManager(ctx, s.cfg)
	return nil
}

func (s *ServiceCommand) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	return s.serve(context.Background(), sigChan)
}

// serve runs the service until ctx is cancelled or a termination signal arrives.
func (s *ServiceCommand) serve(ctx context.Context, signals <-chan os.Signal) error {
	log.Infof("Starting tunroute service...")

	if err := s.serviceMgr.Start(); err != nil {
		return err
	}

	if s.cfg.API.Enable && !s.NoAPI {
		if err := s.startAPIServer(ctx, s.cfg.API.ListenAddr); err != nil {
			log.Errorf("Failed to start API server: %v", err)
			log.Warnf("HTTP API will not be available")
		}
	} else {
		log.Infof("HTTP API is disabled")
	}

	log.Infof("Service started successfully.")
	log.Infof("Send SIGHUP to reload configured routes")

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()

		case sig := <-signals:
			switch sig {
			case syscall.SIGHUP:
				log.Infof("Received SIGHUP signal, reloading configuration...")
				if err := s.serviceMgr.Reload(); err != nil {
					log.Errorf("Failed to reload configuration: %v", err)
				} else {
					log.Infof("Configuration reloaded successfully")
				}

			case syscall.SIGINT, syscall.SIGTERM:
				log.Infof("Received signal %v, shutting down...", sig)
				return s.shutdown()
			}
		}
	}
}

// startAPIServer runs the HTTP API under a supervisor, so a failed bind is retried.
func (s *ServiceCommand) startAPIServer(ctx context.Context, bindAddr string) error {
	log.Infof("Access to the API is restricted to private subnets only:")
	log.Infof("  IPv4: 10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16, 127.0.0.0/8")
	log.Infof("  IPv6: fc00::/7, fe80::/10, ::1/128")

	handler := api.NewHandler(s.serviceMgr.Manager(), s.serviceMgr.System(), enabledFamilies(s.cfg))

	s.apiRunner = NewSupervisor(SupervisorConfig{
		Name:           "API server",
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
	}, func(runCtx context.Context) error {
		server := api.NewServer(bindAddr, handler)
		if err := server.Start(); err != nil {
			return err
		}

		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("error during API server shutdown: %w", err)
		}
		return nil
	})

	return s.apiRunner.Start(ctx)
}

// shutdown performs graceful shutdown of all components.
func (s *ServiceCommand) shutdown() error {
	log.Infof("Shutting down tunroute service...")

	if s.apiRunner != nil {
		log.Infof("Stopping API server...")
		if err := s.apiRunner.Stop(); err != nil {
			log.Errorf("Failed to stop API server: %v", err)
		}
	}

	log.Infof("Stopping route manager...")
	if err := s.serviceMgr.Stop(); err != nil {
		log.Errorf("Failed to stop route manager: %v", err)
	}

	log.Infof("Service stopped successfully")
	return nil
}
