package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chazu/storyvm/manifest"
	"github.com/chazu/storyvm/save"
	"github.com/chazu/storyvm/vm"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Play a story on the terminal",
		ArgsUsage: "[story]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "slot", Usage: "Save slot (default from config)"},
			&cli.StringFlag{Name: "transcript", Usage: "File receiving the game transcript"},
			&cli.Int64Flag{Name: "seed", Usage: "Seed the random number generator"},
			&cli.BoolFlag{Name: "trace", Usage: "Log every instruction at debug level"},
		},
		Action: func(c *cli.Context) error {
			story, err := readStory(c)
			if err != nil {
				return err
			}
			cfg := config(c)
			store, err := cfg.OpenSaveStore()
			if err != nil {
				return err
			}
			defer store.Close()

			slot := cfg.Save.Slot
			if c.IsSet("slot") {
				slot = c.String("slot")
			}
			opts := cfg.MachineOptions()
			opts = append(opts,
				vm.WithOutput(&terminal{w: c.App.Writer, width: cfg.Machine.ScreenWidth}),
				vm.WithInput(vm.NewLineInput(c.App.Reader)),
				vm.WithPersistence(save.NewPersister(c.Context, store, story, slot)),
			)
			if path := c.String("transcript"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return errors.Wrap(err, "open transcript")
				}
				defer f.Close()
				opts = append(opts, vm.WithTranscript(f))
			}
			if c.IsSet("seed") {
				opts = append(opts, vm.WithRandomSeed(c.Int64("seed")))
			}
			if c.Bool("trace") {
				opts = append(opts, vm.WithTrace(true))
			}

			m, err := vm.Load(story, opts...)
			if err != nil {
				return err
			}
			log.Infof("playing %s (v%d)", m.Header().ID(), m.Version())
			if err := m.Run(c.Context); err != nil {
				return errors.Wrapf(err, "stopped at 0x%05x", m.PC())
			}
			return nil
		},
	}
}

func loadForInspection(c *cli.Context) (*vm.Machine, error) {
	story, err := readStory(c)
	if err != nil {
		return nil, err
	}
	return vm.Load(story)
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show the story header",
		ArgsUsage: "[story]",
		Action: func(c *cli.Context) error {
			m, err := loadForInspection(c)
			if err != nil {
				return err
			}
			h := m.Header()
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Story\t%s\n", h.ID())
			fmt.Fprintf(w, "Version\t%d\n", h.Version)
			fmt.Fprintf(w, "Release\t%d\n", h.Release)
			fmt.Fprintf(w, "Serial\t%s\n", h.Serial)
			fmt.Fprintf(w, "Checksum\t0x%04x (computed 0x%04x)\n", h.Checksum, m.Checksum())
			fmt.Fprintf(w, "File length\t%d\n", h.FileLength)
			fmt.Fprintf(w, "Static memory\t0x%04x\n", h.StaticBase)
			fmt.Fprintf(w, "High memory\t0x%04x\n", h.HighBase)
			fmt.Fprintf(w, "Initial PC\t0x%05x\n", m.PC())
			fmt.Fprintf(w, "Dictionary\t0x%04x\n", h.Dictionary)
			fmt.Fprintf(w, "Object table\t0x%04x (%d objects)\n", h.ObjectTable, m.Objects().Count())
			fmt.Fprintf(w, "Globals\t0x%04x\n", h.Globals)
			fmt.Fprintf(w, "Abbreviations\t0x%04x\n", h.Abbreviations)
			return w.Flush()
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Verify the checksum and the object tree",
		ArgsUsage: "[story]",
		Action: func(c *cli.Context) error {
			m, err := loadForInspection(c)
			if err != nil {
				return err
			}
			var problems []string
			if want, got := m.Header().Checksum, m.Checksum(); want != got {
				problems = append(problems, fmt.Sprintf("checksum is 0x%04x, header says 0x%04x", got, want))
			}
			if err := m.SelfCheck(); err != nil {
				problems = append(problems, err.Error())
			}
			if len(problems) > 0 {
				return errors.New(strings.Join(problems, "; "))
			}
			fmt.Fprintf(c.App.Writer, "%s: ok\n", m.Header().ID())
			return nil
		},
	}
}

func disasmCommand() *cli.Command {
	return &cli.Command{
		Name:      "disasm",
		Usage:     "Disassemble instructions",
		ArgsUsage: "[story]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Start address (default: the initial PC)"},
			&cli.IntFlag{Name: "count", Value: 20, Usage: "Number of instructions"},
		},
		Action: func(c *cli.Context) error {
			m, err := loadForInspection(c)
			if err != nil {
				return err
			}
			addr := m.PC()
			if s := c.String("addr"); s != "" {
				v, err := strconv.ParseUint(s, 0, 32)
				if err != nil {
					return errors.Wrapf(err, "bad address %q", s)
				}
				addr = uint32(v)
			}
			lines, err := m.Disassemble(addr, c.Int("count"))
			for _, line := range lines {
				fmt.Fprintln(c.App.Writer, line)
			}
			return err
		},
	}
}

func objectsCommand() *cli.Command {
	return &cli.Command{
		Name:      "objects",
		Usage:     "Print the object tree",
		ArgsUsage: "[story]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "props", Usage: "Include attributes and properties"},
		},
		Action: func(c *cli.Context) error {
			m, err := loadForInspection(c)
			if err != nil {
				return err
			}
			tree := m.Objects()
			for id := 1; id <= tree.Count(); id++ {
				o, err := tree.Object(uint16(id))
				if err != nil {
					return err
				}
				if o.Parent == 0 {
					if err := printObject(c, tree, o.ID, 0, c.Bool("props")); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

func printObject(c *cli.Context, tree *vm.ObjectTree, id uint16, depth int, props bool) error {
	name, err := tree.ShortName(id)
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(c.App.Writer, "%s[%d] %q\n", indent, id, name)
	if props {
		var attrs []string
		for n := 0; n < tree.Profile().AttributeBits; n++ {
			if set, _ := tree.Attribute(id, n); set {
				attrs = append(attrs, strconv.Itoa(n))
			}
		}
		if len(attrs) > 0 {
			fmt.Fprintf(c.App.Writer, "%s    attributes: %s\n", indent, strings.Join(attrs, " "))
		}
		list, err := tree.Properties(id)
		if err != nil {
			return err
		}
		for _, p := range list {
			fmt.Fprintf(c.App.Writer, "%s    property %d: % x\n", indent, p.ID, p.Data)
		}
	}
	kids, err := tree.Children(id)
	if err != nil {
		return err
	}
	for _, kid := range kids {
		if err := printObject(c, tree, kid, depth+1, props); err != nil {
			return err
		}
	}
	return nil
}

func dictCommand() *cli.Command {
	return &cli.Command{
		Name:      "dict",
		Usage:     "List the dictionary",
		ArgsUsage: "[story]",
		Action: func(c *cli.Context) error {
			m, err := loadForInspection(c)
			if err != nil {
				return err
			}
			d := m.Dictionary()
			if d == nil {
				return errors.New("story has no dictionary")
			}
			entries, err := d.Entries()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(c.App.Writer, "0x%05x  %-10s % x\n", e.Address, e.Word, e.Data)
			}
			fmt.Fprintf(c.App.Writer, "%d words\n", len(entries))
			return nil
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Write a default storyvm.toml",
		ArgsUsage: "[story]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: ".", Usage: "Directory to write storyvm.toml into"},
		},
		Action: func(c *cli.Context) error {
			dir := c.String("dir")
			if _, err := os.Stat(filepath.Join(dir, manifest.FileName)); err == nil {
				return errors.Errorf("%s already exists in %s", manifest.FileName, dir)
			}
			m := manifest.Default()
			m.Story.Path = c.Args().First()
			if err := manifest.Write(dir, m); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "wrote %s\n", filepath.Join(dir, manifest.FileName))
			return nil
		},
	}
}
