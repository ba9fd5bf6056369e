package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Dicklesworthstone/sysmon/internal/model"
	"github.com/Dicklesworthstone/sysmon/internal/sampler"
)

func newInfoCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the static machine description",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := sampler.NewHost(a.logger).StaticInfo(cmd.Context())
			if err != nil {
				return err
			}
			return writeInfo(cmd.OutOrStdout(), info, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format: json|yaml")
	return cmd
}

func writeInfo(w io.Writer, info model.StaticInfo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(info)
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
