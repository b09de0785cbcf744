package main

import (
	"context"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"prism-board/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx := context.Background()
	switch backend := os.Getenv("STORE_BACKEND"); backend {
	case "sqlite":
		path := os.Getenv("STORE_PATH")
		if path == "" {
			path = "board.db"
		}
		if err := createSchema(ctx, path); err != nil {
			log.Fatalf("create schema: %v", err)
		}
	case "tables", "":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("missing STORAGE_CONNECTION_STRING")
		}
		table := os.Getenv("BOARD_TABLE")
		if table == "" {
			table = "boards"
		}
		if err := createTable(ctx, connStr, table); err != nil {
			log.Fatalf("create table: %v", err)
		}
		if queue := os.Getenv("CHANGES_QUEUE"); queue != "" {
			if err := createQueue(ctx, connStr, queue); err != nil {
				log.Fatalf("create queue: %v", err)
			}
		}
	default:
		log.Infof("backend %q needs no provisioning", backend)
	}

	log.Info("storage init complete")
}

func createSchema(ctx context.Context, path string) error {
	b, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	log.WithField("path", path).Info("sqlite schema ready")
	return b.Close()
}

func createTable(ctx context.Context, connStr, name string) error {
	c, err := storage.NewTableClient(connStr, name)
	if err != nil {
		return err
	}
	if _, err := c.CreateTable(ctx, nil); err != nil && !storage.IsAlreadyExists(err) {
		return err
	}
	log.WithField("table", name).Info("table ready")
	return nil
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := storage.NewQueueClient(connStr, name)
	if err != nil {
		return err
	}
	if _, err := q.Create(ctx, nil); err != nil && !storage.IsAlreadyExists(err) {
		return err
	}
	log.WithField("queue", name).Info("queue ready")
	return nil
}
