package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/entity"
)

const defaultRegion = "us-east-1"

// TextractAPI is the part of the Textract client the backend calls.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type TextractConfig struct {
	// Region and keys are used when the organization's cloud service leaves them empty.
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Attempts        uint
	Delay           time.Duration
}

// ClientFactory builds a Textract client for an organization's credentials.
type ClientFactory func(ctx context.Context, region, keyID, secret string) (TextractAPI, error)

// Textract sends page images to AWS Textract DetectDocumentText.
type Textract struct {
	cfg       TextractConfig
	images    Images
	newClient ClientFactory
	logger    *slog.Logger
}

func NewTextract(cfg TextractConfig, images Images, newClient ClientFactory, logger *slog.Logger) *Textract {
	if logger == nil {
		logger = slog.Default()
	}
	if newClient == nil {
		newClient = awsClient
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	return &Textract{cfg: cfg, images: images, newClient: newClient, logger: logger}
}

func awsClient(ctx context.Context, region, keyID, secret string) (TextractAPI, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if keyID != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(keyID, secret, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return textract.NewFromConfig(awsCfg), nil
}

func (t *Textract) Service() constants.CloudService { return constants.ServiceAWS }

func (t *Textract) Fetch(ctx context.Context, pc *entity.PageContext) ([]Block, error) {
	img, err := t.images.Read(pc.Page)
	if err != nil {
		return nil, backendErr(t.Service(), "read image", err)
	}

	region, keyID, secret := t.cfg.Region, t.cfg.AccessKeyID, t.cfg.SecretAccessKey
	if cs := pc.CloudService; cs != nil {
		if cs.Region != "" {
			region = cs.Region
		}
		if cs.ClientID != "" {
			keyID, secret = cs.ClientID, cs.ClientSecret
		}
	}
	client, err := t.newClient(ctx, region, keyID, secret)
	if err != nil {
		return nil, backendErr(t.Service(), "configure client", err)
	}

	t.logger.Info("submitting textract request", "page_id", pc.Page.ID, "region", region, "bytes", len(img))
	var out *textract.DetectDocumentTextOutput
	err = retry.Do(
		func() error {
			var callErr error
			out, callErr = client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
				Document: &types.Document{Bytes: img},
			})
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(t.cfg.Attempts),
		retry.Delay(t.cfg.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			t.logger.Warn("textract call failed, retrying", "page_id", pc.Page.ID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, backendErr(t.Service(), "DetectDocumentText", err)
	}
	t.logger.Info("textract response received", "page_id", pc.Page.ID, "blocks", len(out.Blocks))

	blocks := make([]Block, 0, len(out.Blocks))
	for _, b := range out.Blocks {
		blocks = append(blocks, fromTextract(b))
	}
	return blocks, nil
}

// isTransient reports whether Textract asked us to back off or failed on its side.
func isTransient(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "ProvisionedThroughputExceededException", "LimitExceededException", "InternalServerError":
		return true
	}
	return apiErr.ErrorFault() == smithy.FaultServer
}

func fromTextract(b types.Block) Block {
	out := Block{
		ID:         aws.ToString(b.Id),
		Type:       BlockType(b.BlockType),
		Text:       aws.ToString(b.Text),
		TextType:   string(b.TextType),
		Confidence: float64(aws.ToFloat32(b.Confidence)),
	}
	if b.Geometry != nil {
		for _, p := range b.Geometry.Polygon {
			out.Geometry.Polygon = append(out.Geometry.Polygon, Point{X: float64(p.X), Y: float64(p.Y)})
		}
	}
	for _, r := range b.Relationships {
		out.Relationships = append(out.Relationships, Relationship{Type: string(r.Type), IDs: r.Ids})
	}
	return out
}
