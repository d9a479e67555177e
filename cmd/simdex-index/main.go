package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	parse "github.com/helmline/simdex/internal/catalog"
	"github.com/helmline/simdex/internal/embedding"
	logpkg "github.com/helmline/simdex/internal/logger"
	"github.com/helmline/simdex/internal/metrics"
	openaiEmb "github.com/helmline/simdex/internal/transport/openai"
	cataloguc "github.com/helmline/simdex/internal/usecase/catalog"
	"github.com/helmline/simdex/internal/version"
)

// simdex-index builds the catalog index pair offline: it reads extracted
// product records from a JSON file, embeds them, and writes the artifact
// directory the API server loads on startup.
func main() {
	var (
		productsPath = flag.String("products", "extracted_products.json", "path to the extracted products JSON file")
		outDir       = flag.String("out", "vector_index", "artifact output directory")
		model        = flag.String("model", "text-embedding-3-small", "embedding model")
		batchSize    = flag.Int("batch-size", embedding.DefaultBatchSize, "texts per embedding request")
		baseURL      = flag.String("base-url", "", "override the embedding API base URL")
	)
	flag.Parse()

	logger, err := logpkg.New("local")
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Fatal("OPENAI_API_KEY is not set")
	}

	logger.Info("Building catalog index",
		zap.String("version", version.Version),
		zap.String("products", *productsPath),
		zap.String("out", *outDir),
		zap.String("model", *model),
	)

	metrics.RegisterCoreMetrics()

	raw, err := os.ReadFile(*productsPath)
	if err != nil {
		logger.Fatal("Failed to read products file", zap.Error(err))
	}

	// The same tolerant parser the API uses, so a file of raw extraction
	// output works as well as a clean JSON array.
	products, err := parse.ParseProducts(string(raw))
	if err != nil {
		logger.Fatal("Failed to parse products file", zap.Error(err))
	}
	if len(products) == 0 {
		logger.Fatal("No product records found", zap.String("path", *productsPath))
	}

	provider := openaiEmb.NewProvider(&openaiEmb.Config{
		APIKey:  apiKey,
		BaseURL: *baseURL,
		Logger:  logger,
	})
	client := embedding.NewClient(provider, logger)

	svc := cataloguc.New(client, *outDir, *model, logger)

	n, err := svc.BuildIndex(context.Background(), products, *model, *batchSize)
	if err != nil {
		logger.Fatal("Index build failed", zap.Error(err))
	}

	logger.Info("Index built", zap.Int("items", n), zap.String("out", *outDir))
	fmt.Printf("indexed %d records into %s\n", n, *outDir)
}
