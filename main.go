package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/shopware/php-infer/internal/config"
	"github.com/shopware/php-infer/internal/infer"
	"github.com/shopware/php-infer/internal/php"
	"github.com/shopware/php-infer/internal/server"
	"github.com/tidwall/pretty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("phpinfer")

const usage = `Usage: php-infer [-root dir] [-v n] <command> [flags]

Commands:
  serve     answer JSON-RPC requests on stdio
  index     index the project and exit
  watch     index the project and keep it up to date
  resolve   print the type of an expression
`

// multiFlag collects a repeated string flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ", ") }

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func main() {
	flags := flag.NewFlagSet("php-infer", flag.ExitOnError)
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	root := flags.String("root", "", "project root, defaults to the working directory")
	verbosity := flags.Int("v", 0, "log verbosity, overrides the configuration")
	_ = flags.Parse(os.Args[1:])

	var override *int
	flags.Visit(func(f *flag.Flag) {
		if f.Name == "v" {
			override = verbosity
		}
	})

	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	if err := run(*root, override, flags.Arg(0), flags.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(root string, verbosity *int, command string, args []string) error {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	cfg, err := config.LoadProject(root)
	if err != nil {
		return err
	}
	if verbosity != nil {
		cfg.Verbosity = *verbosity
	}
	commonlog.Configure(cfg.Verbosity, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		return serve(root, cfg)
	case "index":
		return index(ctx, root, cfg)
	case "watch":
		return watch(ctx, root, cfg)
	case "resolve":
		return resolve(root, cfg, args)
	}

	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", command)
}

func serve(root string, cfg *config.Config) error {
	p, err := openProject(root, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Errorf("error closing project: %s", err)
		}
	}()

	srv := server.NewServer(p.index, p.resolver, p.analyzer, p.scanner)
	return srv.Start(os.Stdin, os.Stdout)
}

func index(ctx context.Context, root string, cfg *config.Config) error {
	p, err := openProject(root, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.scanner.IndexAll(ctx); err != nil {
		return err
	}
	fmt.Printf("%d classes, %d functions\n", len(p.index.ClassNames()), len(p.index.FunctionNames()))
	return nil
}

func watch(ctx context.Context, root string, cfg *config.Config) error {
	p, err := openProject(root, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.scanner.IndexAll(ctx); err != nil {
		return err
	}
	p.scanner.SetOnUpdate(func() {
		log.Infof("index updated, %d classes", len(p.index.ClassNames()))
	})
	if err := p.scanner.StartWatcher(); err != nil {
		return err
	}

	log.Noticef("watching %s", root)
	<-ctx.Done()
	return nil
}

func resolve(root string, cfg *config.Config, args []string) error {
	flags := flag.NewFlagSet("resolve", flag.ContinueOnError)
	scopeName := flags.String("scope", "", "class the expression is evaluated in, optionally Class::method")
	var query infer.Query
	flags.StringVar(&query.Kind, "kind", infer.QueryType, "method, static, new, property, call or type")
	flags.StringVar(&query.Name, "name", "", "method or property name")
	var arguments multiFlag
	flags.Var(&arguments, "arg", "argument type, \"name: type\" for named arguments; repeatable")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("resolve needs exactly one callee, e.g. resolve -kind method -name get 'App\\Box<int>'")
	}
	query.Callee = flags.Arg(0)
	query.Arguments = arguments

	p, err := openProject(root, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	scope, err := p.scope(*scopeName)
	if err != nil {
		return err
	}
	t, err := query.Type(scope)
	if err != nil {
		return err
	}

	resolved, err := p.resolver.Resolve(scope, t)
	if err != nil {
		return err
	}

	out, err := php.TypeJSON(resolved)
	if err != nil {
		return err
	}

	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		fmt.Println(resolved.String())
		out = pretty.Color(pretty.Pretty(out), nil)
	} else {
		out = append(out, '\n')
	}
	_, err = os.Stdout.Write(out)
	return err
}
