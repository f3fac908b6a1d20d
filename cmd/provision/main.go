// Command provision creates the tables described by a YAML template batch.
//
//	provision -tenant acme -database 3 -file crm.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nexuscrm/tablestore/internal/app"
	"github.com/nexuscrm/tablestore/internal/config"
	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// batchFile is the YAML layout: a list under "templates"
type batchFile struct {
	Templates []models.Template `yaml:"templates"`
}

func loadBatch(r io.Reader) ([]models.Template, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f batchFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse template batch: %w", err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("template batch is empty")
	}
	return f.Templates, nil
}

func main() {
	tenant := flag.String("tenant", "", "tenant id")
	databaseID := flag.Int64("database", 0, "database id")
	file := flag.String("file", "", "template batch YAML file")
	actor := flag.String("actor", "provision-cli", "actor recorded in audit entries")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.LogLevel, cfg.Environment)
	defer func() { _ = log.Sync() }()

	if *tenant == "" || *databaseID <= 0 || *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal("❌ Cannot open template file", zap.Error(err))
	}
	templates, err := loadBatch(f)
	_ = f.Close()
	if err != nil {
		log.Fatal("❌ Invalid template file", zap.Error(err))
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("❌ Failed to start", zap.Error(err))
	}
	defer application.Close()

	result, err := application.Services.Provisioning.ProvisionTemplateBatch(ctx, *tenant, *databaseID, *actor, templates)
	if err != nil {
		log.Error("❌ Batch rejected", zap.Error(err))
		application.Close()
		os.Exit(1)
	}

	for _, c := range result.Created {
		log.Info("✅ Created", zap.String("template", c.TemplateID), zap.Int64("table_id", c.Table.ID))
	}
	for _, e := range result.Errors {
		log.Warn("⚠️ Failed", zap.String("template", e.TemplateID), zap.String("code", e.Code), zap.String("message", e.Message))
	}
	if len(result.Errors) > 0 {
		application.Close()
		os.Exit(1)
	}
}
