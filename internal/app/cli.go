package app

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

var Version = "dev"

func Execute(args []string, out io.Writer, errOut io.Writer) int {
	app := App{Out: out, Err: errOut}
	flags := GlobalFlags{}
	var showVersion bool

	root := &cobra.Command{
		Use:           "domq",
		Short:         "Query the DOM of live browser pages and local documents",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.BoolVarP(&showVersion, "version", "V", false, "version")
	pf.StringVarP(&flags.Profile, "profile", "p", "", "profile name")
	pf.StringVarP(&flags.ProfileDir, "profile-dir", "D", "", "profile directory")
	pf.BoolVarP(&flags.JSON, "json", "j", false, "compact json output")
	pf.BoolVarP(&flags.Plain, "plain", "P", false, "one line per result")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet output")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose logging")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVarP(&flags.NoStart, "no-start", "N", false, "do not auto-start")
	pf.StringVarP(&flags.Browser, "browser", "b", "", "browser type")
	pf.StringVarP(&flags.Channel, "channel", "c", "", "browser channel")
	pf.BoolVarP(&flags.Headless, "headless", "H", false, "run headless")
	pf.BoolVarP(&flags.Headed, "headed", "E", false, "run headed")
	pf.StringVar(&flags.Viewport, "viewport", "", "viewport WIDTHxHEIGHT")
	pf.IntVarP(&flags.Tab, "tab", "T", 0, "tab id")
	pf.StringVarP(&flags.TTL, "ttl", "L", "", "profile ttl")
	pf.StringVarP(&flags.Timeout, "timeout", "t", "", "action timeout")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if showVersion {
			fmt.Fprintln(out, Version)
			return exitError{code: exitSuccess}
		}
		return nil
	}

	// withEnv wraps a runner that needs config, profiles and the daemon
	// manager.
	withEnv := func(run func(e env, args []string) int) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, args []string) error {
			e, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			defer func() { _ = e.log.Sync() }()
			return exitOrNil(run(e, args))
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install Playwright driver and browsers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return exitOrNil(app.runInstall(flags))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check install and environment health",
		RunE: withEnv(func(e env, _ []string) int {
			return app.runDoctor(e, flags)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start a profile",
		RunE: withEnv(func(e env, _ []string) int {
			return app.runStart(e, flags)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop a profile",
		RunE: withEnv(func(e env, _ []string) int {
			return app.runStop(e, flags)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "ps",
		Short: "List running profiles",
		RunE: withEnv(func(e env, _ []string) int {
			return app.runPs(e, flags)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: withEnv(func(e env, _ []string) int {
			return app.runList(e, flags)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(e env, args []string) int {
			return app.runShow(e, flags, args[0])
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "rm NAME...",
		Short: "Remove profiles",
		Args:  cobra.MinimumNArgs(1),
		RunE: withEnv(func(e env, args []string) int {
			return app.runRemove(e, flags, args)
		}),
	})

	var dryRun, force bool
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired profiles",
		RunE: withEnv(func(e env, _ []string) int {
			return app.runPrune(e, flags, dryRun, force)
		}),
	}
	pruneCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "preview")
	pruneCmd.Flags().BoolVarP(&force, "force", "f", false, "stop and remove running profiles")
	root.AddCommand(pruneCmd)

	root.AddCommand(tabCommand(app, &flags, withEnv))

	root.AddCommand(&cobra.Command{
		Use:   "goto URL",
		Short: "Navigate the active tab",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(e env, args []string) int {
			return app.runGoto(e, flags, args[0])
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "url",
		Short: "Print current tab URL",
		RunE: withEnv(func(e env, _ []string) int {
			return app.runURL(e, flags)
		}),
	})

	var qf QueryFlags
	queryCmd := &cobra.Command{
		Use:   "query EXPR",
		Short: "Run a css or xpath query and print the serialized result",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(e env, args []string) int {
			return app.runQuery(e, flags, qf, args[0])
		}),
	}
	addQueryFlags(queryCmd, &qf)
	queryCmd.Flags().StringVarP(&qf.Type, "type", "y", "css", "query type: css or xpath")
	queryCmd.Flags().StringVarP(&qf.Methods, "methods", "M", "", "method chain: a name, a JSON call or a JSON array of calls")
	root.AddCommand(queryCmd)

	var df QueryFlags
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the full serialized document tree",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(e env, _ []string) int {
			df.Type = "dump"
			return app.runQuery(e, flags, df, "")
		}),
	}
	addQueryFlags(dumpCmd, &df)
	root.AddCommand(dumpCmd)

	var jobWait bool
	jobCmd := &cobra.Command{
		Use:   "job ID",
		Short: "Print the result of a delegated frame query",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(e env, args []string) int {
			return app.runJob(e, flags, args[0], jobWait)
		}),
	}
	jobCmd.Flags().BoolVarP(&jobWait, "wait", "w", false, "wait until the job resolves")
	root.AddCommand(jobCmd)

	root.AddCommand(&cobra.Command{
		Use:    "serve",
		Short:  "Internal daemon entrypoint",
		Hidden: true,
		RunE: withEnv(func(e env, _ []string) int {
			return app.runServe(e, flags)
		}),
	})

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(errOut, err)
		return exitUsage
	}
	return exitSuccess
}

func addQueryFlags(cmd *cobra.Command, qf *QueryFlags) {
	cmd.Flags().StringVarP(&qf.Frame, "frame", "f", "", "selector of the frame element to query inside")
	cmd.Flags().StringVar(&qf.File, "file", "", "query a local HTML file instead of a browser tab")
	cmd.Flags().StringVar(&qf.BaseURL, "base-url", "", "document URL for --file (default file://PATH)")
	cmd.Flags().BoolVarP(&qf.Wait, "wait", "w", false, "wait for delegated frame results")
}

func tabCommand(app App, flags *GlobalFlags, withEnv func(func(env, []string) int) func(*cobra.Command, []string) error) *cobra.Command {
	tabCmd := &cobra.Command{
		Use:   "tab",
		Short: "Manage tabs",
	}
	var url string
	tabNewCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new tab",
		RunE: withEnv(func(e env, _ []string) int {
			return app.runTabNew(e, *flags, url)
		}),
	}
	tabNewCmd.Flags().StringVarP(&url, "url", "u", "", "navigate url")
	tabCmd.AddCommand(tabNewCmd)

	tabCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tabs",
		RunE: withEnv(func(e env, _ []string) int {
			return app.runTabList(e, *flags)
		}),
	})

	// tabArg reads the tab id from the argument or from --tab.
	tabArg := func(args []string) (int, error) {
		if len(args) == 1 {
			return strconv.Atoi(args[0])
		}
		if flags.Tab == 0 {
			return 0, errors.New("tab id required")
		}
		return flags.Tab, nil
	}
	tabCmd.AddCommand(&cobra.Command{
		Use:   "close [ID]",
		Short: "Close a tab",
		Args:  cobra.MaximumNArgs(1),
		RunE: withEnv(func(e env, args []string) int {
			id, err := tabArg(args)
			if err != nil {
				return app.fail(err, exitUsage)
			}
			return app.runTabClose(e, *flags, id)
		}),
	})
	tabCmd.AddCommand(&cobra.Command{
		Use:   "switch [ID]",
		Short: "Switch active tab",
		Args:  cobra.MaximumNArgs(1),
		RunE: withEnv(func(e env, args []string) int {
			id, err := tabArg(args)
			if err != nil {
				return app.fail(err, exitUsage)
			}
			return app.runTabSwitch(e, *flags, id)
		}),
	})
	return tabCmd
}

func exitOrNil(code int) error {
	if code == exitSuccess {
		return nil
	}
	return exitError{code: code}
}
