package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopfront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// AllowedImageContentTypes is the whitelist for product image uploads.
// SVG is excluded because it can carry script.
var AllowedImageContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// MaxImageSize is the largest accepted upload in bytes
const MaxImageSize = 10 << 20

// ObjectStorageService defines the interface for object storage operations
type ObjectStorageService interface {
	// GenerateUploadURL generates a presigned URL for uploading a file
	GenerateUploadURL(ctx context.Context, storageKey, contentType string, expiresIn time.Duration) (string, time.Time, error)

	// GenerateDownloadURL generates a presigned URL for downloading a file
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)

	// DeleteObject deletes an object from storage
	DeleteObject(ctx context.Context, storageKey string) error

	// ObjectExists checks if an object exists in storage
	ObjectExists(ctx context.Context, storageKey string) (bool, error)
}

// ImageServiceConfig holds configuration for the image service
type ImageServiceConfig struct {
	UploadURLExpiry   time.Duration
	DownloadURLExpiry time.Duration
}

// DefaultImageServiceConfig returns the default configuration
func DefaultImageServiceConfig() ImageServiceConfig {
	return ImageServiceConfig{
		UploadURLExpiry:   15 * time.Minute,
		DownloadURLExpiry: time.Hour,
	}
}

// ImageService manages product images in object storage. Clients upload
// straight to storage with a presigned URL and then attach the key.
type ImageService struct {
	productRepo catalog.ProductRepository
	storage     ObjectStorageService
	config      ImageServiceConfig
	logger      *zap.Logger
}

// NewImageService creates a new ImageService
func NewImageService(productRepo catalog.ProductRepository, storage ObjectStorageService, logger *zap.Logger) *ImageService {
	return &ImageService{
		productRepo: productRepo,
		storage:     storage,
		config:      DefaultImageServiceConfig(),
		logger:      logger,
	}
}

// SetConfig sets the service configuration
func (s *ImageService) SetConfig(config ImageServiceConfig) {
	s.config = config
}

// RequestUpload returns a presigned PUT URL and the key the image will live under
func (s *ImageService) RequestUpload(ctx context.Context, productID uuid.UUID, req ImageUploadRequest) (*ImageUploadResponse, error) {
	if _, err := s.productRepo.FindByID(ctx, productID); err != nil {
		return nil, err
	}
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !AllowedImageContentTypes[contentType] {
		return nil, shared.NewDomainError("DISALLOWED_CONTENT_TYPE",
			fmt.Sprintf("Content type '%s' is not allowed. Allowed types: JPEG, PNG, GIF and WebP.", req.ContentType))
	}
	if req.FileSize > MaxImageSize {
		return nil, shared.NewDomainError("FILE_TOO_LARGE", "Images cannot exceed 10 MB")
	}

	key := storageKey(productID, req.FileName)
	url, expiresAt, err := s.storage.GenerateUploadURL(ctx, key, contentType, s.config.UploadURLExpiry)
	if err != nil {
		s.logger.Error("failed to presign upload", zap.String("key", key), zap.Error(err))
		return nil, shared.NewDomainError("UPLOAD_URL_FAILED", "Failed to generate upload URL")
	}
	return &ImageUploadResponse{Key: key, UploadURL: url, ExpiresAt: expiresAt}, nil
}

// Attach records an uploaded image on the product after checking it exists in storage
func (s *ImageService) Attach(ctx context.Context, productID uuid.UUID, key string) (*ProductResponse, error) {
	if !strings.HasPrefix(key, keyPrefix(productID)) {
		return nil, shared.NewDomainError("INVALID_IMAGE", "Image key does not belong to this product")
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	exists, err := s.storage.ObjectExists(ctx, key)
	if err != nil {
		return nil, shared.NewDomainError("STORAGE_CHECK_FAILED", "Failed to verify upload")
	}
	if !exists {
		return nil, shared.NewDomainError("UPLOAD_NOT_FOUND", "File not found in storage. Please upload the file first.")
	}

	if err := product.AttachImage(key); err != nil {
		return nil, err
	}
	if err := s.productRepo.Save(ctx, product); err != nil {
		return nil, err
	}
	response := ToProductResponse(product)
	s.resolveURLs(ctx, response.Images)
	return &response, nil
}

// Remove detaches an image and deletes the object
func (s *ImageService) Remove(ctx context.Context, productID uuid.UUID, key string) (*ProductResponse, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.RemoveImage(key) {
		return nil, shared.NewDomainError("IMAGE_NOT_FOUND", "Image is not attached to this product")
	}
	if err := s.productRepo.Save(ctx, product); err != nil {
		return nil, err
	}
	s.deleteObjects(ctx, []string{key})

	response := ToProductResponse(product)
	s.resolveURLs(ctx, response.Images)
	return &response, nil
}

// resolveURLs fills presigned download URLs. An image whose URL cannot be
// signed is returned without one.
func (s *ImageService) resolveURLs(ctx context.Context, images []ImageResponse) {
	for i := range images {
		url, _, err := s.storage.GenerateDownloadURL(ctx, images[i].Key, s.config.DownloadURLExpiry)
		if err != nil {
			s.logger.Warn("failed to presign image download", zap.String("key", images[i].Key), zap.Error(err))
			continue
		}
		images[i].URL = url
	}
}

// deleteObjects removes objects, logging failures. The product no longer
// references them so a leftover object is only wasted space.
func (s *ImageService) deleteObjects(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.storage.DeleteObject(ctx, key); err != nil {
			s.logger.Warn("failed to delete image object", zap.String("key", key), zap.Error(err))
		}
	}
}

func keyPrefix(productID uuid.UUID) string {
	return "products/" + productID.String() + "/images/"
}

func storageKey(productID uuid.UUID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return keyPrefix(productID) + uuid.New().String() + ext
}
