package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/voltsight/twin-gateway/internal/models"
)

const predictionKeyPrefix = "twin:prediction:"

// PredictionCache stores validated predictions keyed by their guided input.
type PredictionCache struct {
	provider Provider
	ttl      time.Duration
}

// NewPredictionCache wraps provider. A nil provider or non-positive ttl disables caching.
func NewPredictionCache(provider Provider, ttl time.Duration) *PredictionCache {
	if provider == nil || ttl <= 0 {
		return nil
	}
	return &PredictionCache{provider: provider, ttl: ttl}
}

// Get returns a cached prediction for in. The boolean is false on a miss.
func (c *PredictionCache) Get(ctx context.Context, in models.GuidedInput) (models.PredictionResult, bool, error) {
	if c == nil {
		return models.PredictionResult{}, false, nil
	}
	data, err := c.provider.Get(ctx, PredictionKey(in))
	if errors.Is(err, ErrCacheMiss) {
		return models.PredictionResult{}, false, nil
	}
	if err != nil {
		return models.PredictionResult{}, false, err
	}
	var result models.PredictionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return models.PredictionResult{}, false, fmt.Errorf("decode cached prediction: %w", err)
	}
	return result, true, nil
}

// Put stores result for in.
func (c *PredictionCache) Put(ctx context.Context, in models.GuidedInput, result models.PredictionResult) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}
	return c.provider.Set(ctx, PredictionKey(in), data, c.ttl)
}

// PredictionKey hashes the normalised guided input. Vehicle model and habit compare
// case- and whitespace-insensitively.
func PredictionKey(in models.GuidedInput) string {
	normalised := strings.Join([]string{
		strings.ToLower(strings.Join(strings.Fields(in.VehicleModel), " ")),
		strconv.FormatFloat(in.OriginalCapacityKwh, 'g', -1, 64),
		strconv.FormatFloat(in.OdometerKm, 'g', -1, 64),
		strings.ToLower(strings.TrimSpace(string(in.ChargingHabit))),
	}, "\x1f")
	sum := sha256.Sum256([]byte(normalised))
	return predictionKeyPrefix + hex.EncodeToString(sum[:])
}
