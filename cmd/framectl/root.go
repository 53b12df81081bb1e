package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/framelink/internal/protocol/frame"
	"github.com/taoyao-code/framelink/internal/registry"
)

// cli 命令共享状态
type cli struct {
	defsDir   string
	noBuiltin bool
	outputFmt string
	registry  *registry.Registry
	formatter formatter
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "framectl",
		Short: "Encode, decode and inspect fixed-layout telemetry frames",
		Long: `framectl works with the frame layout HEADER | payload | CHECKSUM | FOOTER.
Schemas come from the built-in packets plus any JSON/YAML definition files
found under --defs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(!c.noBuiltin, c.defsDir)
			if err != nil {
				return fmt.Errorf("load schemas: %w", err)
			}
			c.registry = reg
			c.formatter = newFormatter(c.outputFmt)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.defsDir, "defs", "", "directory of packet definition files (.json/.yaml)")
	root.PersistentFlags().BoolVar(&c.noBuiltin, "no-builtin", false, "do not register the built-in packets")
	root.PersistentFlags().StringVarP(&c.outputFmt, "output", "o", "table", "output format: table, json, yaml")

	root.AddCommand(
		c.schemasCmd(),
		c.describeCmd(),
		c.encodeCmd(),
		c.decodeCmd(),
		c.sendCmd(),
	)
	return root
}

func (c *cli) codec(name string) (*frame.Codec, error) {
	return c.registry.Get(name)
}

// parseAssignments 解析 name=value 参数，值保持字符串交给 Coerce 转换
func parseAssignments(args []string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected name=value, got %q", a)
		}
		if _, dup := values[k]; dup {
			return nil, fmt.Errorf("field %q given twice", k)
		}
		values[k] = v
	}
	return values, nil
}
