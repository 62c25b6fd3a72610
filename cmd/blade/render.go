package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRenderCmd(s *settings) *cobra.Command {
	var (
		dataFile string
		set      map[string]string
		partial  bool
		section  string
		fragment string
	)
	cmd := &cobra.Command{
		Use:   "render VIEW",
		Short: "Render a view to standard output",
		Long: `Render a view with data read from a JSON or YAML file.

Examples:
  blade render pages.home -d home.json
  blade render pages.home -d home.yml --set title=Preview
  blade render pages.list --fragment items
  blade render pages.list --partial --section sidebar`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readData(dataFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			for k, v := range set {
				data[k] = v
			}
			e, err := s.engine()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var out string
			switch {
			case fragment != "":
				out, err = e.RenderFragment(ctx, args[0], fragment, data)
			case partial:
				p, perr := e.RenderPartial(ctx, args[0], data, section)
				out, err = p.HTML, perr
			default:
				out, err = e.RenderToString(ctx, args[0], data)
			}
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&dataFile, "data", "d", "", "JSON or YAML file with the view data, - for JSON on stdin")
	f.StringToStringVar(&set, "set", nil, "extra string values (key=value)")
	f.BoolVar(&partial, "partial", false, "render without the layout")
	f.StringVar(&section, "section", "", "section returned by --partial")
	f.StringVar(&fragment, "fragment", "", "render only this fragment")
	return cmd
}

// readData decodes view data. YAML is picked by file extension, everything
// else is read as JSON.
func readData(name string, stdin io.Reader) (map[string]any, error) {
	data := map[string]any{}
	if name == "" {
		return data, nil
	}
	var raw []byte
	var err error
	if name == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(raw, &data)
	default:
		err = json.Unmarshal(raw, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode data %s: %w", name, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
