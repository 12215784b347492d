package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/internal/store"
)

// browserHeaders mimic a real browser. Many image hosts refuse plain
// client requests, so the fetch pretends to be Chrome following a
// Google result.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Accept-Encoding": "gzip, deflate, br",
	"Referer":         "https://www.google.com/",
	"DNT":             "1",
	"Connection":      "keep-alive",
}

// ImageService downloads recipe images and re-hosts them in the object
// store so the catalog never depends on third-party URLs staying alive.
type ImageService struct {
	store       store.ObjectStore
	client      *http.Client
	prefix      string
	fallbackKey string
	maxBytes    int64
}

// NewImageService creates an image service. prefix is where re-hosted
// images live ("images/"), fallbackKey points at the bundled
// placeholder used when no source image can be fetched.
func NewImageService(objects store.ObjectStore, prefix, fallbackKey string, maxBytes int64) *ImageService {
	return &ImageService{
		store:       objects,
		client:      &http.Client{Timeout: 10 * time.Second},
		prefix:      prefix,
		fallbackKey: fallbackKey,
		maxBytes:    maxBytes,
	}
}

// StoredImage describes where a recipe image ended up.
type StoredImage struct {
	Key          string
	UsedFallback bool
	FetchError   string
}

func (s *ImageService) imageKey(recipeKey string) string {
	return s.prefix + recipeKey + ".jpg"
}

// FetchImage downloads an image and validates the response actually
// carries image content.
func (s *ImageService) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	if imageURL == "" {
		return nil, "", fmt.Errorf("empty image URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid image URL: %w", err)
	}
	for name, value := range browserHeaders {
		req.Header.Set(name, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch returned HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "image") {
		return nil, "", fmt.Errorf("fetched content is not an image: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", s.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("image body is empty")
	}

	return data, contentType, nil
}

// StoreFromURL fetches one image URL and re-hosts it under the
// recipe's image key. On fetch failure the bundled placeholder is
// stored instead; the returned error is non-nil only when neither the
// source nor the placeholder could be stored.
func (s *ImageService) StoreFromURL(ctx context.Context, imageURL, recipeKey string) (*StoredImage, error) {
	data, _, err := s.FetchImage(ctx, imageURL)
	if err == nil {
		key := s.imageKey(recipeKey)
		if putErr := s.storeBytes(ctx, key, data); putErr != nil {
			return nil, putErr
		}
		return &StoredImage{Key: key}, nil
	}

	logger.Warn("Image fetch failed, using fallback",
		"recipe_key", recipeKey,
		"error", err.Error(),
	)

	return s.storeFallback(ctx, recipeKey, err.Error())
}

// Delete removes a recipe's re-hosted image. Missing objects are fine;
// deletion also runs when a catalog write is being rolled back and the
// image may never have been stored.
func (s *ImageService) Delete(ctx context.Context, recipeKey string) error {
	if err := s.store.Delete(ctx, s.imageKey(recipeKey)); err != nil {
		return fmt.Errorf("failed to delete image for recipe %s: %w", recipeKey, err)
	}
	return nil
}

func (s *ImageService) storeFallback(ctx context.Context, recipeKey, fetchErr string) (*StoredImage, error) {
	placeholder, _, err := s.store.Get(ctx, s.fallbackKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image and fallback not available: %s", fetchErr)
	}

	key := s.imageKey(recipeKey)
	if err := s.storeBytes(ctx, key, placeholder); err != nil {
		return nil, err
	}

	return &StoredImage{Key: key, UsedFallback: true, FetchError: fetchErr}, nil
}

func (s *ImageService) storeBytes(ctx context.Context, key string, data []byte) error {
	_, err := s.store.Put(ctx, key, data, store.PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		return fmt.Errorf("failed to store image %s: %w", key, err)
	}
	return nil
}
