// Command earcalc scores recorded landmark sets offline.
//
// Input is one landmark set per line, either a bare [[x,y],...] array or an
// object {"points": [[x,y],...]}. Each line is classified with the same
// rule the live monitor uses.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/safedrive/drowsiness-monitor/internal/ear"
	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	input := flag.String("input", "", "landmark file, one set per line (default stdin)")
	threshold := flag.Float64("threshold", ear.DefaultThreshold, "EAR at or below which the driver is Drowsy")
	schemeName := flag.String("scheme", ear.IBUG68.Name, "landmark scheme")
	asJSON := flag.Bool("json", false, "emit one JSON object per line")
	flag.Parse()

	classifier, err := newClassifier(*schemeName, *threshold)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var r io.Reader = os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open input: %v\n", err)
			os.Exit(2)
		}
		defer f.Close()
		r = f
	}

	os.Exit(run(r, os.Stdout, os.Stderr, classifier, *asJSON))
}

type landmarkLine struct {
	Points types.LandmarkSet `json:"points"`
}

type result struct {
	Line  int               `json:"line"`
	Left  float64           `json:"left_ear"`
	Right float64           `json:"right_ear"`
	EAR   float64           `json:"ear"`
	State types.DriverState `json:"state"`
}

// run classifies every line of r. It returns 1 if any line failed.
func run(r io.Reader, stdout, stderr io.Writer, classifier *ear.Classifier, asJSON bool) int {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		lineNo   int
		failures int
		counts   = map[types.DriverState]int{}
	)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		points, err := parseLine(line)
		if err != nil {
			fmt.Fprintf(stderr, "line %d: %v\n", lineNo, err)
			failures++
			continue
		}

		reading, err := classifier.Classify(points)
		if err != nil {
			fmt.Fprintf(stderr, "line %d: %v\n", lineNo, err)
			failures++
			continue
		}
		counts[reading.State]++

		res := result{Line: lineNo, Left: reading.Left, Right: reading.Right, EAR: reading.Average, State: reading.State}
		if asJSON {
			data, _ := json.Marshal(res)
			fmt.Fprintln(stdout, string(data))
		} else {
			fmt.Fprintf(stdout, "%d\t%.4f\t%.4f\t%.4f\t%s\n", res.Line, res.Left, res.Right, res.EAR, res.State)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return 2
	}

	fmt.Fprintf(stderr, "%d alert, %d drowsy, %d failed\n", counts[types.Alert], counts[types.Drowsy], failures)
	if failures > 0 {
		return 1
	}
	return 0
}

// newClassifier resolves the scheme by name. Its error already names the
// known schemes.
func newClassifier(schemeName string, threshold float64) (*ear.Classifier, error) {
	scheme, err := ear.SchemeByName(schemeName)
	if err != nil {
		return nil, err
	}
	return ear.NewClassifier(scheme, threshold)
}

func parseLine(line []byte) (types.LandmarkSet, error) {
	if line[0] == '[' {
		var points types.LandmarkSet
		if err := json.Unmarshal(line, &points); err != nil {
			return nil, fmt.Errorf("decode points: %w", err)
		}
		return points, nil
	}

	var obj landmarkLine
	if err := json.Unmarshal(line, &obj); err != nil {
		return nil, fmt.Errorf("decode line: %w", err)
	}
	return obj.Points, nil
}
