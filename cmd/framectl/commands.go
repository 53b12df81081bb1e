package main

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/framelink/internal/api"
	"github.com/taoyao-code/framelink/internal/protocol/frame"
)

type schemaRow struct {
	Name      string `json:"name" yaml:"name"`
	Payload   int    `json:"payload_size" yaml:"payload_size"`
	Frame     int    `json:"frame_size" yaml:"frame_size"`
	Header    string `json:"header" yaml:"header"`
	Footer    string `json:"footer" yaml:"footer"`
	Checksum  string `json:"checksum" yaml:"checksum"`
	ByteOrder string `json:"byte_order" yaml:"byte_order"`
}

type fieldRow struct {
	Name   string `json:"name" yaml:"name"`
	Kind   string `json:"kind" yaml:"kind"`
	Width  int    `json:"width" yaml:"width"`
	Offset int    `json:"offset" yaml:"offset"`
}

type encodeResult struct {
	Schema string `json:"schema" yaml:"schema"`
	Size   int    `json:"size" yaml:"size"`
	Hex    string `json:"hex" yaml:"hex"`
}

func rowFor(codec *frame.Codec) schemaRow {
	return schemaRow{
		Name:      codec.Name(),
		Payload:   codec.Schema().PayloadSize(),
		Frame:     codec.FrameSize(),
		Header:    fmt.Sprintf("0x%02X", codec.Header()),
		Footer:    fmt.Sprintf("0x%02X", codec.Footer()),
		Checksum:  string(codec.Checksum()),
		ByteOrder: fmt.Sprint(codec.ByteOrder()),
	}
}

func (c *cli) schemasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List registered schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([]schemaRow, 0, c.registry.Len())
			for _, n := range c.registry.Names() {
				codec, _ := c.registry.Lookup(n)
				rows = append(rows, rowFor(codec))
			}
			fmt.Fprint(cmd.OutOrStdout(), c.formatter.Format(rows))
			return nil
		},
	}
}

func (c *cli) describeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <schema>",
		Short: "Show the payload layout of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := c.codec(args[0])
			if err != nil {
				return err
			}
			fields := codec.Schema().Fields()
			rows := make([]fieldRow, 0, len(fields))
			for _, f := range fields {
				rows = append(rows, fieldRow{Name: f.Name, Kind: f.Kind.String(), Width: f.Width, Offset: f.Offset})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", codec.Schema())
			fmt.Fprint(cmd.OutOrStdout(), c.formatter.Format(rows))
			return nil
		},
	}
}

func (c *cli) encode(name string, assignments []string) (*frame.Codec, []byte, error) {
	codec, err := c.codec(name)
	if err != nil {
		return nil, nil, err
	}
	values, err := parseAssignments(assignments)
	if err != nil {
		return nil, nil, err
	}
	p, err := codec.Schema().Coerce(values)
	if err != nil {
		return nil, nil, err
	}
	b, err := codec.Encode(p)
	if err != nil {
		return nil, nil, err
	}
	return codec, b, nil
}

func (c *cli) encodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "encode <schema> name=value...",
		Short:   "Build a frame from field values",
		Example: "  framectl encode CyyPacket my=1.5 name=42 target=-3.25",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, b, err := c.encode(args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), c.formatter.Format(encodeResult{Schema: codec.Name(), Size: len(b), Hex: api.FormatHex(b)}))
			return nil
		},
	}
}

func (c *cli) decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "decode <schema> <hex>...",
		Short:   "Validate and decode a frame",
		Example: "  framectl decode CyyPacket AA 00 00 C0 3F 2A 00 00 00 00 00 50 C0 39 55",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := c.codec(args[0])
			if err != nil {
				return err
			}
			raw, err := api.ParseHex(strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			p, err := codec.Decode(raw)
			if err != nil {
				return fmt.Errorf("%s frame rejected (%s): %w", codec.Name(), frame.ErrorKind(err), err)
			}
			named := codec.Schema().Named(p)
			rows := make([]fieldValue, 0, len(named))
			for _, f := range codec.Schema().Fields() {
				rows = append(rows, fieldValue{Name: f.Name, Value: named[f.Name]})
			}
			fmt.Fprint(cmd.OutOrStdout(), c.formatter.Format(rows))
			return nil
		},
	}
}

type fieldValue struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value" yaml:"value"`
}

func (c *cli) sendCmd() *cobra.Command {
	var (
		addr    string
		count   int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:     "send <schema> name=value...",
		Short:   "Encode a frame and write it to a TCP channel",
		Example: "  framectl send CyyPacket --addr 127.0.0.1:7001 my=1 name=2 target=3",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				return fmt.Errorf("--addr is required")
			}
			_, b, err := c.encode(args[0], args[1:])
			if err != nil {
				return err
			}
			conn, err := net.DialTimeout("tcp", addr, timeout)
			if err != nil {
				return err
			}
			defer conn.Close()
			_ = conn.SetWriteDeadline(time.Now().Add(timeout))
			for i := 0; i < count; i++ {
				if _, err := conn.Write(b); err != nil {
					return fmt.Errorf("write frame %d: %w", i+1, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d x %d bytes to %s\n", count, len(b), addr)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "channel address host:port")
	cmd.Flags().IntVar(&count, "count", 1, "number of copies to send")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "dial and write timeout")
	return cmd
}
