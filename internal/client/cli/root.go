package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tripkeeper/internal/client/app"
	"github.com/dmitrijs2005/tripkeeper/internal/client/config"
)

// OpenFunc builds the App a command runs against.
type OpenFunc func(ctx context.Context, c *config.Config) (*app.App, error)

// runtime is shared by every command of one invocation.
type runtime struct {
	open   OpenFunc
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	cfg *config.Config
	app *app.App
	yes bool
}

// Run executes the offlinectl command line in args. open is called once,
// after the configuration is loaded, and the App is closed before Run
// returns.
func Run(ctx context.Context, args []string, open OpenFunc, in io.Reader, out, errOut io.Writer) error {
	rt := &runtime{open: open, in: bufio.NewReader(in), out: out, errOut: errOut}

	root := newRootCommand(rt)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, rt.stop())
}

func newRootCommand(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "offlinectl",
		Short:         "Inspect and maintain the offline trip data store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.start(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "JSON config file")
	for _, f := range config.Flags() {
		pf.String(f.Name, f.Default, f.Usage)
	}
	pf.BoolVarP(&rt.yes, "yes", "y", false, "do not ask before destructive operations")

	root.AddCommand(
		newTripsCommand(rt),
		newEstimateCommand(rt),
		newCacheTilesCommand(rt),
		newTilesCommand(rt),
		newPhotosCommand(rt),
		newStorageCommand(rt),
		newQueueCommand(rt),
		newDraftsCommand(rt),
		newSessionCommand(rt),
		newSyncCommand(rt),
		newServeCommand(rt),
	)
	return root
}

// configArgs turns the config flags set on the command line back into
// arguments for config.Load, so flags keep the highest precedence.
func configArgs(cmd *cobra.Command) []string {
	var args []string
	fs := cmd.Flags()
	if path, _ := fs.GetString("config"); path != "" {
		args = append(args, "--config="+path)
	}
	for _, f := range config.Flags() {
		if !fs.Changed(f.Name) {
			continue
		}
		v, err := fs.GetString(f.Name)
		if err != nil {
			continue
		}
		args = append(args, "--"+f.Name+"="+v)
	}
	return args
}

func (rt *runtime) start(cmd *cobra.Command) error {
	cfg, err := config.Load(configArgs(cmd))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	rt.cfg = cfg

	a, err := rt.open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	rt.app = a
	return nil
}

func (rt *runtime) stop() error {
	if rt.app == nil {
		return nil
	}
	err := rt.app.Close()
	rt.app = nil
	return err
}

func (rt *runtime) confirm(prompt string) error {
	if rt.yes {
		return nil
	}
	return Confirm(rt.in, prompt, rt.errOut)
}

func (rt *runtime) printJSON(v any) error {
	enc := json.NewEncoder(rt.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
