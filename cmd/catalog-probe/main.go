// Command catalog-probe inspects a BMECAT catalog to bootstrap a vendor's
// mapping configuration.
//
// By default it prints every distinct element path with its occurrence
// count, attribute names and a sample text. With -skeleton it prints (or
// stores under -config-key) a starter mapping configuration for the detected
// layout instead; notes about guessed parts go to stderr.
//
// The catalog is read from an object store like bmecat-preprocess does, or
// from a local file given with -file.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/probe"

	_ "github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore/blobstore"
	_ "github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore/filestore"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	file           string
	inputStore     string
	inputRoot      string
	inputContainer string
	inputKey       string

	filter    string
	maxDepth  int
	sampleLen int
	asJSON    bool

	skeleton  bool
	format    string
	configKey string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var o options
	fs := flag.NewFlagSet("catalog-probe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.file, "file", "", "local catalog path (shortcut for -input-root/-input-key)")
	fs.StringVar(&o.inputStore, "input-store", "file", "input object store: file|azblob")
	fs.StringVar(&o.inputRoot, "input-root", ".", "base directory for -input-store file")
	fs.StringVar(&o.inputContainer, "input-container", "", "container for -input-store azblob")
	fs.StringVar(&o.inputKey, "input-key", "", "object key of the catalog XML")
	fs.StringVar(&o.filter, "filter", "", "only report paths containing this substring")
	fs.IntVar(&o.maxDepth, "max-depth", 0, "do not descend below this many path segments (0 = unlimited)")
	fs.IntVar(&o.sampleLen, "sample-len", probe.DefaultSampleLen, "maximum sample text length in runes")
	fs.BoolVar(&o.asJSON, "json", false, "print the inventory as JSON instead of a table")
	fs.BoolVar(&o.skeleton, "skeleton", false, "emit a starter mapping configuration instead of the inventory")
	fs.StringVar(&o.format, "format", "json", "skeleton format: json|yaml")
	fs.StringVar(&o.configKey, "config-key", "", "store the skeleton under this key in the input store instead of printing it")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if o.file != "" {
		o.inputStore = "file"
		o.inputRoot = filepath.Dir(o.file)
		o.inputKey = filepath.Base(o.file)
	}
	if strings.TrimSpace(o.inputKey) == "" {
		fmt.Fprintln(stderr, "missing -file or -input-key")
		fs.Usage()
		return exitUsage
	}
	if o.format != "json" && o.format != "yaml" {
		fmt.Fprintf(stderr, "unknown -format %q (want json or yaml)\n", o.format)
		return exitUsage
	}

	st, err := objstore.Open(ctx, objstore.Config{
		Kind:             o.inputStore,
		Root:             o.inputRoot,
		Container:        o.inputContainer,
		ConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	b, err := st.Get(ctx, o.inputKey)
	if err != nil {
		fmt.Fprintf(stderr, "read catalog: %v\n", err)
		return exitRuntime
	}
	root, err := catalog.Parse(bytes.NewReader(b))
	if err != nil {
		fmt.Fprintf(stderr, "parse catalog: %v\n", err)
		return exitRuntime
	}

	inv := probe.Take(root, probe.Options{SampleLen: o.sampleLen, MaxDepth: o.maxDepth})

	if !o.skeleton {
		stats := inv.Filter(o.filter)
		if o.asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			if err := enc.Encode(stats); err != nil {
				fmt.Fprintf(stderr, "encode inventory: %v\n", err)
				return exitRuntime
			}
			return exitOK
		}
		fmt.Fprintln(stdout, probe.FormatReport(stats))
		return exitOK
	}

	sk, err := probe.Build(inv)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitRuntime
	}
	for _, n := range sk.Notes {
		fmt.Fprintf(stderr, "note: %s\n", n)
	}

	var out []byte
	contentType := "application/json"
	if o.format == "yaml" {
		out, err = sk.YAML()
		contentType = "application/yaml"
	} else {
		out, err = sk.JSON()
	}
	if err != nil {
		fmt.Fprintf(stderr, "render skeleton: %v\n", err)
		return exitRuntime
	}

	if o.configKey == "" {
		_, _ = stdout.Write(out)
		return exitOK
	}
	if err := st.Put(ctx, o.configKey, out, contentType); err != nil {
		fmt.Fprintf(stderr, "store skeleton: %v\n", err)
		return exitRuntime
	}
	fmt.Fprintf(stdout, "wrote %s\n", st.Location(o.configKey))
	return exitOK
}
