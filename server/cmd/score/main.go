// Command tems-score scores one batch of log events read as a JSON array and
// prints the prediction as JSON.
//
//	tems-score [-f events.json] [-features]
//
// Events are read from stdin unless -f is given. The exit status is 1 when
// the input cannot be read or any record is invalid.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tems/tems/pkg/risk"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// output is the printed form of a prediction. Features are included only on
// request.
type output struct {
	risk.Prediction
	Features *risk.FeatureVector `json:"features,omitempty"`
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tems-score", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "-", "JSON file holding an array of events; - reads stdin")
	features := fs.Bool("features", false, "include the feature vector in the output")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	in := stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(stderr, "tems-score: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	var raws []risk.RawEvent
	if err := json.NewDecoder(in).Decode(&raws); err != nil {
		fmt.Fprintf(stderr, "tems-score: decode events: %v\n", err)
		return 1
	}

	pred, err := risk.Run(raws)
	if err != nil {
		var ve *risk.ValidationError
		if errors.As(err, &ve) {
			fmt.Fprintf(stderr, "tems-score: invalid %v\n", ve)
			return 1
		}
		fmt.Fprintf(stderr, "tems-score: %v\n", err)
		return 1
	}

	out := output{Prediction: pred}
	if *features {
		out.Features = &pred.Features
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "tems-score: %v\n", err)
		return 1
	}
	return 0
}
