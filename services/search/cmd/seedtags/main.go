// Command seedtags loads tag documents into the search index. Tags are read
// from -file, one "name[,count]" per line, or from a built-in starter set.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/horike37/serverless-application/pkg/logger"
	"github.com/horike37/serverless-application/services/search/internal/domain"
	esengine "github.com/horike37/serverless-application/services/search/internal/engine/elasticsearch"
	"github.com/horike37/serverless-application/services/search/internal/service"
)

var starterTags = []string{
	"ALIS", "blockchain", "Ethereum", "Bitcoin", "crypto", "DApps",
	"NFT", "DeFi", "Web3", "programming", "Go", "Python", "JavaScript",
	"AWS", "serverless", "design", "travel", "food", "music", "books",
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	var (
		esURL    = flag.String("es-url", getEnv("ELASTICSEARCH_URL", "http://localhost:9200"), "Elasticsearch URL")
		tagIndex = flag.String("index", getEnv("ELASTICSEARCH_TAG_INDEX", esengine.DefaultTagIndex), "tag index name")
		file     = flag.String("file", "", `tag list, one "name[,count]" per line`)
		batch    = flag.Int("batch", 500, "tags per bulk request")
	)
	flag.Parse()

	log := logger.New("seedtags", getEnv("LOG_LEVEL", "info"))

	tags, err := loadTags(*file)
	if err != nil {
		log.Error("failed to read tags", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	eng, err := esengine.New(ctx, esengine.Config{URL: *esURL, TagIndex: *tagIndex}, log)
	if err != nil {
		log.Error("failed to connect to elasticsearch", slog.String("error", err.Error()))
		os.Exit(1)
	}
	svc := service.NewSearchService(eng, log)

	total := 0
	for start := 0; start < len(tags); start += *batch {
		end := min(start+*batch, len(tags))
		n, err := svc.BulkIndexTags(ctx, tags[start:end])
		if err != nil {
			log.Error("bulk index failed", slog.Int("offset", start), slog.String("error", err.Error()))
			os.Exit(1)
		}
		total += n
	}

	log.Info("tags seeded",
		slog.String("index", *tagIndex),
		slog.Int("indexed", total),
		slog.Int("skipped", len(tags)-total),
	)
}

func loadTags(path string) ([]domain.Tag, error) {
	if path == "" {
		tags := make([]domain.Tag, 0, len(starterTags))
		for _, name := range starterTags {
			tags = append(tags, domain.Tag{Name: name})
		}
		return tags, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return parseTags(f)
}

// parseTags reads "name[,count]" lines. Blank lines and lines starting with
// # are skipped.
func parseTags(r io.Reader) ([]domain.Tag, error) {
	var tags []domain.Tag
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		name, countText, hasCount := strings.Cut(text, ",")
		tag := domain.Tag{Name: strings.TrimSpace(name)}
		if hasCount {
			count, err := strconv.Atoi(strings.TrimSpace(countText))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid count %q", line, countText)
			}
			tag.Count = count
		}
		tags = append(tags, tag)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tags, nil
}
