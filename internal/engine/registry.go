package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrUnknownParser = errors.New("unknown report parser")

// Spec describes one configured scanner.
type Spec struct {
	Name    string
	Command string
	Args    []string
	Parser  string
	Timeout time.Duration
	Stdin   bool
	Env     []string
}

// Build turns configured specs into a Multi engine. Specs are validated up
// front so a typo fails at startup rather than on the first scan.
func Build(specs []Spec, limit int, log *zap.SugaredLogger) (*Multi, error) {
	engines := make([]Engine, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	var errs []error
	for i, spec := range specs {
		e, err := FromSpec(spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("engines[%d]: %w", i, err))
			continue
		}
		if _, dup := seen[e.Name()]; dup {
			errs = append(errs, fmt.Errorf("engines[%d]: duplicate engine name %q", i, e.Name()))
			continue
		}
		seen[e.Name()] = struct{}{}
		engines = append(engines, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return NewMulti(engines, limit, log), nil
}

func FromSpec(spec Spec) (*Command, error) {
	bin := strings.TrimSpace(spec.Command)
	if bin == "" {
		return nil, ErrEmptyCommand
	}
	parserName := strings.TrimSpace(spec.Parser)
	name := strings.ToLower(strings.TrimSpace(spec.Name))
	if parserName == "" {
		parserName = name
	}
	parser, ok := LookupParser(parserName)
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownParser, parserName, strings.Join(ParserNames(), ", "))
	}
	if name == "" {
		name = strings.ToLower(parserName)
	}
	return &Command{
		EngineName: name,
		Bin:        bin,
		Args:       append([]string(nil), spec.Args...),
		Parser:     parser,
		Timeout:    spec.Timeout,
		Stdin:      spec.Stdin,
		Env:        append([]string(nil), spec.Env...),
	}, nil
}
