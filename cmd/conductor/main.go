package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	conductor "github.com/goliatone/go-conductor"
	"github.com/goliatone/go-conductor/events"
	"github.com/goliatone/go-conductor/executor"
	"github.com/goliatone/go-conductor/resolver"
	"github.com/goliatone/go-conductor/storage"
	"github.com/goliatone/go-conductor/uploads"
	"github.com/goliatone/go-logger/glog"
)

type cli struct {
	Level string `help:"Log level." default:"info" enum:"trace,debug,info,warn,error"`

	Run  runCmd  `cmd:"" help:"Execute a command definition against the store."`
	Plan planCmd `cmd:"" help:"Resolve dependencies and print the optimized plan without executing."`
}

type runCmd struct {
	File string `arg:"" type:"existingfile" help:"Command definition file (YAML or JSON)."`

	DatabaseURL string `name:"database-url" env:"CONDUCTOR_DATABASE_URL" help:"Postgres connection URL. Uses an in-memory store when empty."`

	User    string `required:"" help:"Acting user id."`
	Org     string `required:"" help:"Organization id."`
	Session string `help:"Session id for event correlation."`
	Role    string `default:"member" enum:"admin,manager,member" help:"Role granted to the acting user."`

	Timeout       time.Duration `default:"30s" help:"Transaction timeout for the run."`
	ParallelLimit int           `name:"parallel-limit" default:"3" help:"Maximum concurrent actions per stage."`
	NoRollback    bool          `name:"no-rollback" help:"Continue past action failures instead of rolling back."`
	NoAudit       bool          `name:"no-audit" help:"Skip the audit record for this run."`
	Quiet         bool          `help:"Suppress progress events."`

	MinioEndpoint  string `name:"minio-endpoint" env:"CONDUCTOR_MINIO_ENDPOINT" help:"MinIO endpoint for upload_file actions (host:port, no scheme)."`
	MinioAccessKey string `name:"minio-access-key" env:"CONDUCTOR_MINIO_ACCESS_KEY"`
	MinioSecretKey string `name:"minio-secret-key" env:"CONDUCTOR_MINIO_SECRET_KEY"`
	MinioBucket    string `name:"minio-bucket" env:"CONDUCTOR_MINIO_BUCKET" default:"conductor-uploads"`
}

type planCmd struct {
	File string `arg:"" type:"existingfile" help:"Command definition file (YAML or JSON)."`
}

// glogCompat adapts go-logger to the executor's logging contract.
type glogCompat struct {
	logger glog.Logger
}

func (l glogCompat) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l glogCompat) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l glogCompat) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l glogCompat) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l glogCompat) WithContext(ctx context.Context) executor.Logger {
	if ctx == nil {
		return l
	}
	return glogCompat{logger: l.logger.WithContext(ctx)}
}

func (l glogCompat) WithFields(fields map[string]any) executor.Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogCompat{logger: fl.WithFields(fields)}
	}
	return l
}

func main() {
	var app cli
	kctx := kong.Parse(&app,
		kong.Name("conductor"),
		kong.Description("Dependency-aware multi-action command executor."),
		kong.UsageOnError(),
	)

	logger := glogCompat{logger: glog.NewLogger(
		glog.WithWriter(os.Stderr),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel(app.Level),
	)}

	var err error
	switch kctx.Command() {
	case "run <file>":
		err = app.Run.run(logger)
	case "plan <file>":
		err = app.Plan.run()
	default:
		err = fmt.Errorf("unknown command %q", kctx.Command())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "conductor:", err)
		os.Exit(1)
	}
}

func (c *runCmd) run(logger executor.Logger) error {
	ctx := context.Background()

	cmd, err := conductor.LoadCommandFile(c.File)
	if err != nil {
		return fmt.Errorf("load command: %w", err)
	}

	store, closeStore, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	execOpts := []executor.ExecutorOption{
		executor.WithLogger(logger),
		executor.WithRoleSource(conductor.StaticRoleSource{
			c.User: conductor.Role(c.Role),
		}),
	}

	if c.MinioEndpoint != "" {
		objects, err := uploads.NewMinioStore(uploads.Config{
			Endpoint:  c.MinioEndpoint,
			AccessKey: c.MinioAccessKey,
			SecretKey: c.MinioSecretKey,
			Bucket:    c.MinioBucket,
		})
		if err != nil {
			return fmt.Errorf("object store: %w", err)
		}
		if err := objects.EnsureBucket(ctx, ""); err != nil {
			return fmt.Errorf("object store: %w", err)
		}
		execOpts = append(execOpts, executor.WithUploader(objects))
	}

	broadcaster := events.NewBroadcaster(32)
	if !c.Quiet {
		execOpts = append(execOpts, executor.WithBroadcaster(broadcaster))
	}

	exec := executor.New(store, execOpts...)
	if err := exec.Registry().StartSweep(0); err != nil {
		return err
	}
	defer exec.Registry().StopSweep()

	done := make(chan struct{})
	if !c.Quiet {
		sub := broadcaster.Subscribe()
		go func() {
			defer close(done)
			for ev := range sub {
				fmt.Fprintf(os.Stderr, "event %s command=%s %v\n", ev.Name, ev.CommandID, ev.Fields)
			}
		}()
		defer func() {
			broadcaster.Unsubscribe(sub)
			<-done
		}()
	}

	result := exec.Execute(ctx, cmd, conductor.UserContext{
		UserID:         c.User,
		OrganizationID: c.Org,
		SessionID:      c.Session,
	},
		executor.WithTransactionTimeout(c.Timeout),
		executor.WithParallelLimit(c.ParallelLimit),
		executor.WithRollbackOnAnyFailure(!c.NoRollback),
		executor.WithAuditLogging(!c.NoAudit),
		executor.WithProgressTracking(!c.Quiet),
	)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !result.Success {
		return fmt.Errorf("command %s failed: %s", result.CommandID, result.Error)
	}
	return nil
}

func (c *runCmd) openStore(ctx context.Context) (storage.Querier, func(), error) {
	if c.DatabaseURL == "" {
		return storage.NewMemory(), func() {}, nil
	}
	cfg := storage.DefaultConfig()
	cfg.URL = c.DatabaseURL
	pg, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return pg, func() { pg.Close() }, nil
}

func (c *planCmd) run() error {
	cmd, err := conductor.LoadCommandFile(c.File)
	if err != nil {
		return fmt.Errorf("load command: %w", err)
	}

	res := resolver.New()
	graph, err := res.AnalyzeDependencies(cmd.InternalActions())
	if err != nil {
		return err
	}
	plan, err := res.CreateExecutionPlan(graph)
	if err != nil {
		return err
	}
	optimized := res.OptimizeExecutionOrder(plan)

	out, err := json.MarshalIndent(optimized, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
