// Package cli implements the ontology command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/internal/ontology"
	"github.com/mesh-intelligence/ontology/internal/paths"
	"github.com/mesh-intelligence/ontology/internal/topology"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// errUsage marks bad arguments and flags.
var errUsage = errors.New("usage")

// userErrors exit with exitUserError; anything else is a system error.
var userErrors = []error{
	errUsage,
	types.ErrNotFound,
	types.ErrInvalidDescriptor,
	types.ErrValidation,
	types.ErrDomainNotFound,
	types.ErrOptimisticConflict,
	types.ErrConversion,
	types.ErrCancelled,
	types.ErrPlacement,
	types.ErrPropertyInUse,
	types.ErrInvalidLsid,
	topology.ErrHasChildren,
	topology.ErrCycle,
	topology.ErrReserved,
	topology.ErrDuplicateName,
}

func exitCode(err error) int {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}

// rootFlags holds global flag values.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// app is the state shared by the commands of one invocation.
type app struct {
	flags     rootFlags
	configDir string
	v         *viper.Viper
	log       *zap.Logger
	mgr       *ontology.Manager
}

// NewRootCmd creates the top-level "ontology" command with every subcommand.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ontology",
		Short: "Property and domain metadata storage",
		Long: "Ontology manages property descriptors, domains and the typed values\n" +
			"attached to objects, scoped by a tree of containers.",
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newContainerCmd(a),
		newDomainCmd(a),
		newPropertyCmd(a),
		newObjectCmd(a),
		newImportCmd(a),
		newCheckProjectsCmd(a),
		newStatsCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the matching code.
func Execute() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(stderr, "ontology:", err)
	return exitCode(err)
}

// setup loads configuration and builds the logger. version needs neither.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	dir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(dir)
	if err != nil {
		return err
	}
	log, err := newLogger(v.GetString(cfgKeyLogLevel), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.configDir = dir
	a.v = v
	a.log = log
	return nil
}

// manager attaches on first use.
func (a *app) manager(ctx context.Context) (*ontology.Manager, error) {
	if a.mgr != nil {
		return a.mgr, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	m := ontology.NewManager(a.log)
	if err := m.Attach(ctx, cfg); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	a.mgr = m
	return m, nil
}

func (a *app) close() error {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.mgr == nil {
		return nil
	}
	err := a.mgr.Detach()
	a.mgr = nil
	return err
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return usageArgs(cobra.ExactArgs(n))
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return nil
	}
}
