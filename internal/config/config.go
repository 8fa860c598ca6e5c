// Package config resolves the recognized configuration keys from spec §6:
// max_block_size, root_chunk_threshold, codec_cache_size, cid_hash,
// car_version, vector_metric. Precedence is CLI flags, then environment
// variables (optionally loaded from a .env file first), then hard defaults
// — the same flag-first, no-framework style as the teacher's cmd/seal and
// cmd/keygen, with the env layer grounded on orbas1-Synnergy's
// godotenv.Load() usage.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/cidutil"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/vectorindex"
)

// Defaults mirror the constants the library itself falls back to
// (chunker.MaxBlockSize, chunker.RootChunkThreshold, cidutil.HashName) so
// config.Load and a caller that never touches config agree.
const (
	DefaultMaxBlockSize       = 1 << 20
	DefaultRootChunkThreshold = 800 * 1024
	DefaultCodecCacheSize     = 1024
	DefaultCARVersion         = 1
)

var (
	DefaultCIDHash      = cidutil.HashName
	DefaultVectorMetric = string(vectorindex.Cosine)
)

// Config holds the resolved values of every recognized key.
type Config struct {
	MaxBlockSize       int
	RootChunkThreshold int
	CodecCacheSize     int
	CIDHash            string
	CARVersion         int
	VectorMetric       string
}

// Load resolves a Config from args (typically os.Args[1:]), falling back to
// environment variables and then defaults for anything args doesn't set.
// If envFile is non-empty, it is loaded via godotenv before environment
// variables are read; a missing envFile is not an error.
func Load(args []string, envFile string) (Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	fs := flag.NewFlagSet("ipldctl", flag.ContinueOnError)
	maxBlockSize := fs.Int("max-block-size", envInt("IPLD_MAX_BLOCK_SIZE", DefaultMaxBlockSize), "hard upper bound per stored block, in bytes")
	rootChunkThreshold := fs.Int("root-chunk-threshold", envInt("IPLD_ROOT_CHUNK_THRESHOLD", DefaultRootChunkThreshold), "root record size above which fields are externalized")
	codecCacheSize := fs.Int("codec-cache-size", envInt("IPLD_CODEC_CACHE_SIZE", DefaultCodecCacheSize), "LRU entry capacity for the codec cache")
	cidHash := fs.String("cid-hash", envString("IPLD_CID_HASH", DefaultCIDHash), "multihash function name")
	carVersion := fs.Int("car-version", envInt("IPLD_CAR_VERSION", DefaultCARVersion), "CAR archive format version")
	vectorMetric := fs.String("vector-metric", envString("IPLD_VECTOR_METRIC", DefaultVectorMetric), "similarity metric: cosine or l2")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	c := Config{
		MaxBlockSize:       *maxBlockSize,
		RootChunkThreshold: *rootChunkThreshold,
		CodecCacheSize:     *codecCacheSize,
		CIDHash:            *cidHash,
		CARVersion:         *carVersion,
		VectorMetric:       *vectorMetric,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects values spec §6 marks as fixed or enumerated.
func (c Config) Validate() error {
	if c.MaxBlockSize <= 0 {
		return iperr.New(iperr.KindIOFailure, "max_block_size must be positive")
	}
	if c.RootChunkThreshold <= 0 || c.RootChunkThreshold > c.MaxBlockSize {
		return iperr.New(iperr.KindIOFailure, "root_chunk_threshold must be positive and at most max_block_size")
	}
	if c.CodecCacheSize < 0 {
		return iperr.New(iperr.KindIOFailure, "codec_cache_size must not be negative")
	}
	if c.CIDHash != cidutil.HashName {
		return iperr.New(iperr.KindIOFailure, fmt.Sprintf("cid_hash %q is not supported, only %q is", c.CIDHash, cidutil.HashName))
	}
	if c.CARVersion != 1 {
		return iperr.New(iperr.KindIOFailure, fmt.Sprintf("car_version %d is not supported, only 1 is", c.CARVersion))
	}
	switch vectorindex.Metric(c.VectorMetric) {
	case vectorindex.Cosine, vectorindex.L2:
	default:
		return iperr.New(iperr.KindIOFailure, fmt.Sprintf("vector_metric %q must be %q or %q", c.VectorMetric, vectorindex.Cosine, vectorindex.L2))
	}
	return nil
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envString(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
