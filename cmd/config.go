package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func init() {
	anchorCmd.AddCommand(
		&cobra.Command{
			Use:   "config",
			Short: "Print each config variable, its value, and where the value came from",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				printConfig(os.Stdout)
			},
		})
}

type configVar struct {
	name, by, value string
}

func configVars() []configVar {
	var vars []configVar
	for name, flg := range cfgVars {
		var used bool
		if flg != nil {
			_, used = usedFlags[flg.Name]
		}

		var cv configVar
		if used {
			cv = configVar{name, "flag", flg.Value.String()}
		} else if obj, ok := cfg[name]; ok {
			switch obj.(type) {
			case []interface{}, []map[string]interface{}, map[string]interface{}:
				cv = configVar{name, "config", "..."}
			default:
				cv = configVar{name, "config", fmt.Sprintf("%v", obj)}
			}
		} else if flg != nil {
			cv = configVar{name, "default", flg.DefValue}
		} else {
			continue
		}
		vars = append(vars, cv)
	}

	sort.Slice(vars, func(i, j int) bool {
		return vars[i].name < vars[j].name
	})
	return vars
}

func printConfig(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeader([]string{"name", "by", "value"})
	for _, cv := range configVars() {
		tw.Append([]string{cv.name, cv.by, cv.value})
	}
	tw.Render()
}
