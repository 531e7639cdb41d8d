package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/genieacs-gateway/internal/extract"
	"github.com/John-Robertt/genieacs-gateway/internal/mapping"
	"github.com/John-Robertt/genieacs-gateway/internal/tree"
)

func newExtractCmd(configPath *string) *cobra.Command {
	var (
		mappingFile string
		explain     bool
	)
	cmd := &cobra.Command{
		Use:   "extract [DEVICE_JSON|-]",
		Short: "Run the parameter dictionary over a device document offline",
		Long: `Reads a GenieACS device document (an object, or a list as returned by
GET /devices/ in which case the first device is used) from a file or stdin
and prints the extracted parameters.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mappingFile == "" {
				cfg, err := loadConfig(*configPath)
				if err != nil {
					return err
				}
				mappingFile = cfg.MappingFile
			}
			dict, err := mapping.Load(mappingFile)
			if err != nil {
				return err
			}

			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			data, err := readInput(cmd.InOrStdin(), src)
			if err != nil {
				return err
			}
			device, err := deviceFromDocument(data)
			if err != nil {
				return fmt.Errorf("%s: %w", src, err)
			}

			if explain {
				return writeExplain(cmd.OutOrStdout(), extract.Explain(device, dict))
			}
			return writeIndented(cmd.OutOrStdout(), extract.Extract(device, dict))
		},
	}
	cmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "parameter dictionary file (default: MAPPING_FILE or config)")
	cmd.Flags().BoolVar(&explain, "explain", false, "print every concrete path that contributed a value")
	return cmd
}

func readInput(stdin io.Reader, src string) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(src)
}

// deviceFromDocument accepts a device object or a GenieACS list of devices.
func deviceFromDocument(data []byte) (tree.Node, error) {
	root, err := tree.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid device JSON: %w", err)
	}
	switch v := root.(type) {
	case *tree.Object:
		return v, nil
	case tree.Array:
		if len(v) == 0 {
			return nil, errors.New("device list is empty")
		}
		if _, ok := v[0].(*tree.Object); !ok {
			return nil, fmt.Errorf("first list element is a %s, want an object", v[0].Kind())
		}
		return v[0], nil
	default:
		return nil, fmt.Errorf("device document is a %s, want an object", root.Kind())
	}
}

type explainLine struct {
	Name    string    `json:"name"`
	Pattern string    `json:"pattern"`
	Path    string    `json:"path"`
	Value   tree.Node `json:"value"`
}

func writeExplain(w io.Writer, matches []extract.Match) error {
	lines := make([]explainLine, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, explainLine{
			Name:    m.Name,
			Pattern: m.Pattern.String(),
			Path:    m.Path.String(),
			Value:   m.Value,
		})
	}
	return writeIndented(w, lines)
}

func writeIndented(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}
