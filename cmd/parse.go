package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/electro-tech/pricewatch/internal/model"
	"github.com/electro-tech/pricewatch/internal/parser"
)

var parseRules bool

var parseCmd = &cobra.Command{
	Use:   "parse [message text]",
	Short: "Extract price candidates from a single message",
	Long:  "Runs the extraction rules against one message and prints the candidates as JSON. Useful for checking why a vendor message did or did not yield prices.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := parser.New()

		if parseRules {
			return writeRules(os.Stdout, p.Rules())
		}

		if len(args) != 1 {
			return eris.New("message text required (or --rules to dump the extraction tables)")
		}
		return writeCandidates(os.Stdout, p.Extract(args[0]))
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseRules, "rules", false, "print the extraction tables as YAML instead of parsing")
	rootCmd.AddCommand(parseCmd)
}

// writeCandidates prints extracted candidates as indented JSON. A
// message with no extractable prices prints an empty array, not null.
func writeCandidates(w io.Writer, candidates []model.PriceCandidate) error {
	if candidates == nil {
		candidates = []model.PriceCandidate{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(candidates)
}

// writeRules dumps the active extraction tables as YAML.
func writeRules(w io.Writer, rules parser.Rules) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rules); err != nil {
		return eris.Wrap(err, "encode rules")
	}
	return enc.Close()
}
