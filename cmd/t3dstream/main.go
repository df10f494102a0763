package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rdxz2/t3dapi/internal/app"
	"github.com/rdxz2/t3dapi/internal/config"
	"github.com/rdxz2/t3dapi/internal/logging"
	"github.com/rdxz2/t3dapi/pkg/types"
)

// FUNCTIONAL DISCOVERY: Main entry point with comprehensive error handling and signal management
// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		log.Fatal(err)
	}
}

// options are the command line settings; everything else comes from config
type options struct {
	configPath string
	projects   projectFlags
}

// projectFlags collects repeated -register-project CODE=Name values
type projectFlags []types.Project

func (p *projectFlags) String() string {
	codes := make([]string, 0, len(*p))
	for _, project := range *p {
		codes = append(codes, project.Code)
	}
	return strings.Join(codes, ",")
}

func (p *projectFlags) Set(value string) error {
	code, name, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		name = code
	}
	if !types.IsValidProjectCode(code) {
		return types.ErrInvalidProjectCode
	}
	*p = append(*p, types.Project{Code: code, Name: name, IsActive: true})
	return nil
}

func parseOptions(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("t3dstream", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", os.Getenv("T3D_CONFIG_FILE"), "path to a JSON or YAML config file")
	fs.Var(&opts.projects, "register-project", "register a project as CODE=Name before serving (repeatable, sqlite store only)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
// Signal handling ensures graceful shutdown in production environments
func run(args []string, output io.Writer) error {
	// STEP 1: Parse flags and load configuration with precedence (file > env > defaults)
	opts, err := parseOptions(args, output)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadConfigWithPrecedence(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	// STEP 2: Create application with configuration
	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// STEP 3: Seed projects requested on the command line
	if err := registerProjects(application, opts.projects, logger); err != nil {
		_ = application.Stop(context.Background())
		return err
	}

	// STEP 4: Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// STEP 5: Start application
	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	// STEP 6: Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func registerProjects(application *app.Application, projects []types.Project, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := range projects {
		project := projects[i]
		if err := application.RegisterProject(ctx, &project); err != nil {
			return fmt.Errorf("failed to register project %s: %w", project.Code, err)
		}
		logger.Info("project registered", zap.String("project", project.Code), zap.String("name", project.Name))
	}
	return nil
}
