package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	jsonata "github.com/blues/jsonata-go"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

// ErrUndefinedResult is returned when an expression yields nothing for an input.
var ErrUndefinedResult = errors.New("jsonata: expression produced no result")

type JSONataConfig struct {
	Expression string `yaml:"expression"`
	QueryPath  string `yaml:"query_path"`
}

func (c *JSONataConfig) Validate() error {
	if strings.TrimSpace(c.Expression) == "" && c.QueryPath == "" {
		return errors.New("expression or query_path is required")
	}
	if c.Expression != "" && c.QueryPath != "" {
		return errors.New("expression and query_path are mutually exclusive")
	}
	return nil
}

// JSONata evaluates a compiled expression against the JSON payload.
type JSONata struct {
	name string
	expr *jsonata.Expr
}

func NewJSONata(name string, cfg JSONataConfig) (*JSONata, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	src := cfg.Expression
	if cfg.QueryPath != "" {
		raw, err := os.ReadFile(cfg.QueryPath)
		if err != nil {
			return nil, fmt.Errorf("read query %s: %w", cfg.QueryPath, err)
		}
		src = string(raw)
	}

	expr, err := jsonata.Compile(strings.TrimSpace(src))
	if err != nil {
		return nil, fmt.Errorf("compile jsonata %s: %w", name, err)
	}
	if name == "" {
		name = "jsonata"
	}
	return &JSONata{name: name, expr: expr}, nil
}

func (j *JSONata) Name() string { return j.name }

func (j *JSONata) Transform(env *domain.Envelope) (*domain.Envelope, error) {
	raw, err := toJSON(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", j.name, err)
	}

	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("%s: decode input: %w", j.name, err)
	}

	res, err := j.expr.Eval(input)
	if err != nil {
		if errors.Is(err, jsonata.ErrUndefined) {
			return nil, fmt.Errorf("%s: %w", j.name, ErrUndefinedResult)
		}
		return nil, fmt.Errorf("%s: eval: %w", j.name, err)
	}

	out, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("%s: encode result: %w", j.name, err)
	}
	return env.WithPayload(out), nil
}

var _ ports.Transformer = (*JSONata)(nil)
