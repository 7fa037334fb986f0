package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/ostafen/sophia"
	"github.com/ostafen/sophia/engine"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type cmdCtl struct {
	Path string `arg:"" help:"Control path to read, e.g. sophia.status or db.items.count."`
}

type cmdPut struct {
	Db     string   `arg:"" help:"Database name."`
	Fields []string `arg:"" help:"Document fields as name=value pairs."`
}

type cmdGet struct {
	Db     string   `arg:"" help:"Database name."`
	Fields []string `arg:"" help:"Key fields as name=value pairs."`
	Print  []string `short:"f" default:"value" help:"Fields to print."`
}

type cmdDel struct {
	Db     string   `arg:"" help:"Database name."`
	Fields []string `arg:"" help:"Key fields as name=value pairs."`
}

type cmdScan struct {
	Db     string   `arg:"" help:"Database name."`
	Fields []string `arg:"" optional:"" help:"Start key fields as name=value pairs."`
	Order  string   `short:"o" default:">=" enum:">=,>,<=,<" help:"Iteration order relative to the start key."`
	Prefix string   `help:"Only visit documents whose first key field starts with this prefix."`
	Print  []string `short:"f" default:"key,value" help:"Fields to print."`
}

type cliArgs struct {
	Path    string   `short:"p" help:"Directory of the environment."`
	Backend string   `short:"b" default:"bbolt" enum:"bbolt,badger,memory" help:"Storage backend."`
	Db      []string `short:"d" help:"Databases to declare before opening."`
	Set     []string `short:"s" sep:"none" help:"Control settings applied before opening, as path=value."`
	Verbose bool     `short:"v" help:"Log debug information on stderr."`

	Ctl  cmdCtl  `cmd:"" help:"Print the value of a control path."`
	Put  cmdPut  `cmd:"" help:"Insert or replace a document."`
	Get  cmdGet  `cmd:"" help:"Print fields of the document matching a key."`
	Del  cmdDel  `cmd:"" help:"Delete the document matching a key."`
	Scan cmdScan `cmd:"" help:"Print documents in key order."`
}

// CliConfig contains the configuration for the sophiactl cli
type CliConfig struct {
	Name        string
	Description string
	// Exit is the function to call to exit the program
	Exit   func(int)
	Stdout io.Writer
	Stderr io.Writer
}

// NewCliConfig returns a new Config struct with default values populated
func NewCliConfig() *CliConfig {
	return &CliConfig{
		Name:        "sophiactl",
		Description: "Inspect and edit a sophia environment.",
		Exit:        func(i int) { os.Exit(i) },
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	}
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

func parsePairs(pairs []string) (map[string]string, []string, error) {
	values := make(map[string]string, len(pairs))
	names := make([]string, 0, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("invalid field %q, expected name=value", p)
		}
		if _, dup := values[name]; !dup {
			names = append(names, name)
		}
		values[name] = value
	}
	return values, names, nil
}

// Cli parses args and runs the selected subcommand against the environment
// described by the global flags.
func Cli(args []string, config *CliConfig) (rc int, err error) {
	cli := &cliArgs{}
	parser, err := kong.New(cli,
		kong.Name(config.Name),
		kong.Description(config.Description),
		kong.Exit(config.Exit),
		kong.Writers(config.Stdout, config.Stderr),
	)
	if err != nil {
		return 1, err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return 1, err
	}

	logger := newLogger(config.Stderr, cli.Verbose)
	defer logger.Sync()

	opts := []sophia.Option{
		sophia.WithEngine(engine.New(engine.WithLogger(logger))),
		sophia.WithLogger(logger),
		sophia.WithBackend(cli.Backend),
	}
	if cli.Path != "" {
		opts = append(opts, sophia.WithPath(cli.Path))
	}
	for _, name := range cli.Db {
		opts = append(opts, sophia.WithDatabase(name))
	}
	settings, names, err := parsePairs(cli.Set)
	if err != nil {
		return 1, err
	}
	for _, path := range names {
		opts = append(opts, sophia.WithSetting(path, settings[path]))
	}

	env, err := sophia.Open(opts...)
	if err != nil {
		return 1, err
	}
	defer env.Destroy()

	cmd := ctx.Command()
	logger.Debug("running command", zap.String("cmd", cmd))

	out := config.Stdout
	switch cmd {
	case "ctl <path>":
		v, err := env.Ctl().GetString(cli.Ctl.Path)
		if err != nil {
			return 1, err
		}
		fmt.Fprintln(out, v)

	case "put <db> <fields>":
		err = withObject(env, cli.Put.Db, cli.Put.Fields, func(db *sophia.Db, o *sophia.Object) error {
			return db.Set(o)
		})

	case "get <db> <fields>":
		err = withObject(env, cli.Get.Db, cli.Get.Fields, func(db *sophia.Db, o *sophia.Object) error {
			res, err := db.Get(o)
			if err != nil {
				return err
			}
			defer res.Destroy()
			printObject(out, res, cli.Get.Print)
			return nil
		})

	case "del <db> <fields>":
		err = withObject(env, cli.Del.Db, cli.Del.Fields, func(db *sophia.Db, o *sophia.Object) error {
			return db.Delete(o)
		})

	case "scan <db>", "scan <db> <fields>":
		fields := append([]string{"order=" + cli.Scan.Order}, cli.Scan.Fields...)
		if cli.Scan.Prefix != "" {
			fields = append(fields, "prefix="+cli.Scan.Prefix)
		}
		err = withObject(env, cli.Scan.Db, fields, func(db *sophia.Db, filter *sophia.Object) error {
			c, err := db.Cursor(filter)
			if err != nil {
				return err
			}
			defer c.Destroy()
			return c.ForEach(func(o *sophia.Object) error {
				printObject(out, o, cli.Scan.Print)
				return nil
			})
		})

	default:
		return 1, fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return 1, err
	}
	return 0, nil
}

// withObject resolves database name and calls fn with an object holding fields.
func withObject(env *sophia.Env, name string, fields []string, fn func(db *sophia.Db, o *sophia.Object) error) error {
	values, names, err := parsePairs(fields)
	if err != nil {
		return err
	}

	db, err := env.Ctl().GetDB("db." + name)
	if err != nil {
		return err
	}
	defer db.Destroy()

	o, err := db.Object()
	if err != nil {
		return err
	}
	defer o.Destroy()

	for _, n := range names {
		if err := o.SetString(n, values[n]); err != nil {
			return err
		}
	}
	return fn(db, o)
}

// missingField is printed in place of fields the document does not have.
const missingField = "<missing>"

func printObject(w io.Writer, o *sophia.Object, fields []string) {
	values := make([]string, 0, len(fields))
	for _, f := range fields {
		v, err := o.GetString(f)
		if err != nil {
			v = missingField
		}
		values = append(values, v)
	}
	fmt.Fprintln(w, strings.Join(values, "\t"))
}
