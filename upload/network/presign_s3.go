package network

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/saaskit/go-uploadkit/upload/policy"
)

// DefaultSlotTTL is the write URL lifetime issued by the S3 slot issuer.
const DefaultSlotTTL = 90 * time.Second

// Presigner is the part of the S3 presign client the issuer needs.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3SlotIssuerParams ...
type S3SlotIssuerParams struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// UserID is stamped into the object metadata of every issued slot.
	UserID string
	// TTL is the write URL lifetime. Defaults to DefaultSlotTTL.
	TTL time.Duration
}

// S3SlotIssuer issues upload slots straight from S3, without a separate API
// service: storage keys are generated under the policy's folder and write URLs
// are presigned PUTs bound to the file's content type.
type S3SlotIssuer struct {
	presigner Presigner
	registry  policy.Registry
	params    S3SlotIssuerParams
	logger    log.Logger
}

// NewS3SlotIssuer creates an issuer with its own S3 client.
func NewS3SlotIssuer(ctx context.Context, params S3SlotIssuerParams, registry policy.Registry, logger log.Logger) (*S3SlotIssuer, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	cfg, err := loadAWSCredentials(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg)
	return NewS3SlotIssuerWithPresigner(s3.NewPresignClient(client), params, registry, logger), nil
}

// NewS3SlotIssuerWithPresigner creates an issuer around an existing presign
// client (or a fake, in tests).
func NewS3SlotIssuerWithPresigner(presigner Presigner, params S3SlotIssuerParams, registry policy.Registry, logger log.Logger) *S3SlotIssuer {
	if params.TTL == 0 {
		params.TTL = DefaultSlotTTL
	}
	return &S3SlotIssuer{
		presigner: presigner,
		registry:  registry,
		params:    params,
		logger:    logger,
	}
}

// RequestSlots issues one slot per file, in request order.
func (s *S3SlotIssuer) RequestSlots(ctx context.Context, request SlotRequest) ([]UploadSlot, error) {
	pol, err := s.registry.Lookup(request.PolicyKey)
	if err != nil {
		return nil, err
	}

	if len(request.Files) > pol.MaxFiles {
		return nil, fmt.Errorf("too many files: max allowed is %d, got %d", pol.MaxFiles, len(request.Files))
	}

	slots := make([]UploadSlot, 0, len(request.Files))
	for _, file := range request.Files {
		name, err := generateStorageName(file.MIMEType)
		if err != nil {
			return nil, fmt.Errorf("generate storage name: %w", err)
		}
		key := fmt.Sprintf("%s/%s", pol.Folder, name)

		input := &s3.PutObjectInput{
			Bucket:      aws.String(s.params.Bucket),
			Key:         aws.String(key),
			ContentType: aws.String(file.MIMEType),
		}
		if s.params.UserID != "" {
			input.Metadata = map[string]string{"user_id": s.params.UserID}
		}

		presigned, err := s.presigner.PresignPutObject(ctx, input, func(o *s3.PresignOptions) {
			o.Expires = s.params.TTL
		})
		if err != nil {
			return nil, fmt.Errorf("presign put for %s: %w", file.Filename, err)
		}

		s.logger.Debugf("Issued slot %s for %s", key, file.Filename)
		slots = append(slots, UploadSlot{
			StorageKey: key,
			WriteURL:   presigned.URL,
			ExpiresIn:  int(s.params.TTL.Seconds()),
		})
	}

	return slots, nil
}

// generateStorageName builds a collision-resistant object name: UTC timestamp
// plus random hex, with the extension taken from the MIME subtype.
func generateStorageName(mimeType string) (string, error) {
	id := make([]byte, 6)
	if _, err := rand.Read(id); err != nil {
		return "", err
	}

	ext := "bin"
	if parts := strings.SplitN(mimeType, "/", 2); len(parts) == 2 && parts[1] != "" {
		ext = parts[1]
	}

	timestamp := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("%s-%s.%s", timestamp, hex.EncodeToString(id), ext), nil
}
