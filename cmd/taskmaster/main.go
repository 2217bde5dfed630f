// Command taskmaster manages the task, agent, and sprint files from the
// command line.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/GoCodeAlone/taskmaster/activity"
	"github.com/GoCodeAlone/taskmaster/config"
	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/internal/logging"
	"github.com/GoCodeAlone/taskmaster/internal/version"
	"github.com/GoCodeAlone/taskmaster/tracker"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	config  string
	dir     string
	user    string
	debug   bool
	jsonOut bool
}

func (g *globalFlags) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&g.config, "config", "c", "", "config file (YAML)")
	fs.StringVarP(&g.dir, "dir", "d", "", "store directory (overrides store.dir)")
	fs.StringVarP(&g.user, "user", "u", defaultUser(), "user recorded in the activity log")
	fs.BoolVar(&g.debug, "debug", false, "debug logging and error detail")
	fs.BoolVar(&g.jsonOut, "json", false, "print JSON instead of tables")
}

// app is the per-invocation state built before a command runs.
type app struct {
	flags globalFlags
	out   io.Writer

	cfg    *config.Config
	logger *logging.Logger
	log    activity.Log
	svc    *tracker.Service
}

func main() {
	a := &app{out: os.Stdout}
	root := newRootCmd(a)
	err := root.Execute()
	a.close()
	if err != nil {
		printError(os.Stderr, err, a.flags.debug)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskmaster",
		Short: "Track tasks, agents, and sprints",
		Long: `taskmaster edits the tasks, agents, and sprints JSON files in the store
directory and records every change in the activity log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["standalone"] == "true" {
				return a.loadConfig()
			}
			return a.open()
		},
	}

	a.flags.bind(root.PersistentFlags())

	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newAddTaskCmd(a),
		newUpdateTaskCmd(a),
		newSetStatusCmd(a),
		newRemoveTaskCmd(a),
		newAddSubtaskCmd(a),
		newRemoveSubtaskCmd(a),
		newValidateDepsCmd(a),
		newStatusCmd(a),
		newAgentsCmd(a),
		newDelegateCmd(a),
		newAssignAgentsCmd(a),
		newSprintCmd(a),
		newActivityCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// standalone marks commands that need the config but not the store.
func standalone(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations["standalone"] = "true"
	return cmd
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.flags.config)
	if err != nil {
		return err
	}
	if a.flags.dir != "" {
		cfg.Store.Dir = a.flags.dir
	}
	if a.flags.debug {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg
	return nil
}

// open builds the logger, activity log, and tracker from the config.
func (a *app) open() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:  a.cfg.Log.Level,
		Format: a.cfg.Log.Format,
		File:   a.cfg.Log.File,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.logger = logger

	policy, err := a.cfg.Policy()
	if err != nil {
		return err
	}

	var log activity.Log = activity.Nop{}
	if p := a.cfg.ActivityPath(); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return errs.Wrap(errs.KindIOFailure, "open activity", err)
		}
		sl, err := activity.OpenSQLite(p)
		if err != nil {
			return err
		}
		log = sl
	}
	a.log = log

	a.svc = tracker.New(tracker.Options{
		TasksPath:   a.cfg.TasksPath(),
		AgentsPath:  a.cfg.AgentsPath(),
		SprintsPath: a.cfg.SprintsPath(),
		Policy:      policy,
		Log:         log,
		Logger:      logger.Logger,
	})
	return nil
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Close()
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// ctx returns the command context tagged with the acting user.
func (a *app) ctx(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return tracker.WithUser(ctx, a.flags.user)
}

func newVersionCmd(a *app) *cobra.Command {
	return standalone(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprintf(a.out, "taskmaster %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.BuildDate)
			return nil
		},
	})
}

// printError writes err in red. With debug on, the error kind and the chain
// of operations follow.
func printError(w io.Writer, err error, debug bool) {
	red := color.New(color.FgRed, color.Bold)
	fmt.Fprintf(w, "%s %v\n", red.Sprint("error:"), err)
	if !debug {
		return
	}
	if k := errs.KindOf(err); k != errs.KindUnknown {
		fmt.Fprintf(w, "  kind: %s\n", k)
	}
	if ops := errs.Ops(err); len(ops) > 0 {
		fmt.Fprintf(w, "  ops:  %s\n", strings.Join(ops, " > "))
	}
}
