package extract

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/entity"
)

var (
	//go:embed fixtures/textract_response.json
	defaultFixture []byte
	//go:embed fixtures/textract_response.schema.json
	responseSchemaJSON []byte
)

var responseSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("textract_response.schema.json", bytes.NewReader(responseSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("textract_response.schema.json")
})

type textractResponse struct {
	DocumentMetadata struct {
		Pages int `json:"Pages"`
	} `json:"DocumentMetadata"`
	Blocks []Block `json:"Blocks"`
}

// ParseResponse validates a DetectDocumentText-shaped JSON document and returns its blocks.
func ParseResponse(data []byte) ([]Block, error) {
	schema, err := responseSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}
	var res textractResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return res.Blocks, nil
}

// Dummy serves a canned response for every page. It never touches the network.
type Dummy struct {
	blocks []Block
	logger *slog.Logger
}

// NewDummy loads the response at path, or the built-in sample when path is empty.
func NewDummy(path string, logger *slog.Logger) (*Dummy, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data := defaultFixture
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		data = b
	}
	blocks, err := ParseResponse(data)
	if err != nil {
		return nil, err
	}
	logger.Debug("dummy backend loaded", "path", path, "blocks", len(blocks))
	return &Dummy{blocks: blocks, logger: logger}, nil
}

func (d *Dummy) Service() constants.CloudService { return constants.ServiceTest }

func (d *Dummy) Fetch(ctx context.Context, pc *entity.PageContext) ([]Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.logger.Info("serving canned extraction", "page_id", pc.Page.ID)
	out := make([]Block, len(d.blocks))
	copy(out, d.blocks)
	return out, nil
}
