// storyvm plays Z-machine story files and inspects their structure.
package main

import (
	"fmt"
	"os"

	"github.com/chazu/storyvm/manifest"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/urfave/cli/v2"
)

var log = commonlog.GetLogger("storyvm.cli")

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "storyvm: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "storyvm",
		Usage:   "Z-machine story file interpreter",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Directory holding storyvm.toml (default: search upward from the working directory)", EnvVars: []string{"STORYVM_CONFIG"}},
			&cli.IntFlag{Name: "verbosity", Aliases: []string{"v"}, Usage: "Log verbosity (-4 to 4); overrides the config file"},
			&cli.StringFlag{Name: "log-file", Usage: "Write logs to this file instead of stderr"},
		},
		Before: setup,
		Commands: []*cli.Command{
			runCommand(),
			infoCommand(),
			checkCommand(),
			disasmCommand(),
			objectsCommand(),
			dictCommand(),
			serveCommand(),
			tokenCommand(),
			initCommand(),
		},
	}
}

// setup loads the configuration and configures logging before any command.
func setup(c *cli.Context) error {
	var m *manifest.Manifest
	var err error
	if dir := c.String("config"); dir != "" {
		m, err = manifest.Load(dir)
	} else {
		m, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return err
	}
	if m == nil {
		m = manifest.Default()
	}

	verbosity := m.Log.Verbosity
	if c.IsSet("verbosity") {
		verbosity = c.Int("verbosity")
	}
	path := m.LogPath()
	if c.IsSet("log-file") {
		path = c.String("log-file")
	}
	if path != "" {
		commonlog.Configure(verbosity, &path)
	} else {
		commonlog.Configure(verbosity, nil)
	}

	c.App.Metadata = map[string]interface{}{"manifest": m}
	if m.Dir != "" {
		log.Debugf("configuration from %s", m.Dir)
	}
	return nil
}

func config(c *cli.Context) *manifest.Manifest {
	if m, ok := c.App.Metadata["manifest"].(*manifest.Manifest); ok {
		return m
	}
	return manifest.Default()
}

// storyPath returns the story named on the command line, falling back to
// the configured one.
func storyPath(c *cli.Context) (string, error) {
	if c.Args().Present() {
		return c.Args().First(), nil
	}
	if p := config(c).StoryPath(); p != "" {
		return p, nil
	}
	return "", errors.New("no story file given and none configured")
}

func readStory(c *cli.Context) ([]byte, error) {
	path, err := storyPath(c)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read story file %s", path)
	}
	return data, nil
}
