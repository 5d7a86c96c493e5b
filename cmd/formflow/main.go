package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	formflow "github.com/goliatone/go-formflow"
	"github.com/goliatone/go-formflow/pkg/api"
	"github.com/goliatone/go-formflow/pkg/openapi"
	"github.com/goliatone/go-formflow/pkg/prompt"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/session"
)

func main() {
	source := flag.String("source", "form.json", "form definition path, URL, or - for stdin")
	fromOpenAPI := flag.Bool("openapi", false, "treat the source as an OpenAPI document")
	operation := flag.String("operation", "", "operation ID when converting an OpenAPI document")
	formID := flag.String("form", "", "form identifier sent to the backend")
	baseURL := flag.String("base-url", "", "backend base URL (dry run when empty)")
	publicKey := flag.String("key", "", "backend public key")
	channel := flag.String("channel", "", "render channel to walk")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()

	form, err := loadForm(ctx, *source, *fromOpenAPI, *operation)
	if err != nil {
		log.Fatalf("Failed to load form: %v", err)
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithChannel(*channel),
	}
	if *baseURL != "" {
		client := api.NewHTTPClient(*baseURL, *publicKey, api.WithLogger(logger))
		opts = append(opts, session.WithClient(client))
	}

	sess := formflow.NewSession(*formID, form, opts...)
	sess.Start(ctx)
	defer sess.Close()

	walker := prompt.NewWalker(sess, prompt.NewSurveyDriver())
	if err := walker.Run(ctx); err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			fmt.Fprintln(os.Stderr, "aborted")
			os.Exit(1)
		}
		log.Fatalf("Failed to walk form: %v", err)
	}
}

func loadForm(ctx context.Context, source string, fromOpenAPI bool, operation string) (*schema.Schema, error) {
	if fromOpenAPI {
		raw, err := readSource(source)
		if err != nil {
			return nil, err
		}
		var opts []openapi.Option
		if operation != "" {
			opts = append(opts, openapi.WithOperationID(operation))
		}
		form, err := openapi.FromDocument(ctx, raw, opts...)
		if err != nil {
			return nil, err
		}
		return &form, nil
	}

	if source == "-" {
		raw, err := readSource(source)
		if err != nil {
			return nil, err
		}
		doc, err := schema.NewDocument(schema.SourceFromFile("stdin"), raw)
		if err != nil {
			return nil, err
		}
		return schema.Parse(doc)
	}

	src := parseSource(source)
	if src == nil {
		return nil, fmt.Errorf("invalid source: %q", source)
	}
	return formflow.Load(ctx, src, formflow.WithRemoteSources(30*time.Second))
}

func readSource(source string) ([]byte, error) {
	if source == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(source)
}

func parseSource(raw string) schema.Source {
	path := strings.TrimSpace(raw)
	if path == "" {
		return nil
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return schema.SourceFromURL(path)
	}
	return schema.SourceFromFile(path)
}
