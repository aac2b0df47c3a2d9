package weights

import (
	"bytes"
	"os"

	"github.com/go-logr/logr"

	"github.com/clarity-digital-twin/clarity-backend/pkg/pat/model"
)

// LoadResult reports what actually happened during a Load call so the
// caller (the pipeline's health check, IntegrityFailure) can
// surface weights_verified / model_integrity_verified accurately.
type LoadResult struct {
	Weights          model.Weights
	Verified         bool
	UnexpectedKeys   []string
	FellBackToRandom bool
}

// Options configures one Load call.
type Options struct {
	Path            string
	AllowedDirs     []string
	FallbackPath    string
	SignatureKey    []byte
	ExpectedDigests ExpectedDigests
	RandomSeed      int64
}

// Load resolves, integrity-checks, and translates a pretrained weight file
// into model.Weights for cfg. Any failure along the way — path escape,
// missing file, checksum mismatch, malformed tensor — degrades to a
// deterministic random-initialized model rather than erroring the caller
// out. "Never silently proceed" means never silently trust bad weights,
// not that inference should refuse to run.
func Load(log logr.Logger, cfg model.Config, opts Options) LoadResult {
	resolved, accepted := SanitizePath(opts.Path, opts.AllowedDirs, opts.FallbackPath)
	if !accepted {
		log.Info("weight path outside allow-list, using fallback", "requested", opts.Path, "resolved", resolved)
	}

	fileBytes, err := os.ReadFile(resolved)
	if err != nil {
		log.Error(err, "failed to read weight file, falling back to random init", "path", resolved)
		return randomFallback(cfg, opts.RandomSeed)
	}

	if !VerifyIntegrity(fileBytes, opts.SignatureKey, cfg.Size, opts.ExpectedDigests) {
		log.Error(nil, "CRITICAL: weight file failed integrity verification, falling back to random init", "path", resolved, "variant", cfg.Size)
		return randomFallback(cfg, opts.RandomSeed)
	}

	dump, err := decodeDump(bytes.NewReader(fileBytes))
	if err != nil {
		log.Error(err, "failed to decode weight file, falling back to random init", "path", resolved)
		return randomFallback(cfg, opts.RandomSeed)
	}

	trunk, unexpected, err := Translate(dump, cfg)
	if err != nil {
		log.Error(err, "failed to translate weight tensors, falling back to random init", "path", resolved)
		return randomFallback(cfg, opts.RandomSeed)
	}
	if len(unexpected) > 0 {
		log.Info("weight file contained unrecognized tensors, skipped", "count", len(unexpected), "keys", unexpected)
	}

	// The classification head is newly initialized regardless of pretrained
	// trunk weights.
	trunk.Head = model.RandomInit(cfg, opts.RandomSeed).Head

	return LoadResult{Weights: trunk, Verified: true, UnexpectedKeys: unexpected}
}

func randomFallback(cfg model.Config, seed int64) LoadResult {
	return LoadResult{
		Weights:          model.RandomInit(cfg, seed),
		Verified:         false,
		FellBackToRandom: true,
	}
}
