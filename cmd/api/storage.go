package main

import (
	"context"

	"github.com/linksight/linksight/internal/config"
	"github.com/linksight/linksight/internal/infrastructure/db"
	"github.com/linksight/linksight/internal/processing/links"
	mongoStorage "github.com/linksight/linksight/internal/storage/mongo"
	postgresStorage "github.com/linksight/linksight/internal/storage/postgres"
)

type storageSet struct {
	linkRepo  links.LinkRepository
	visitRepo links.VisitRepository
	close     func()
}

// initStorage wires the configured backend. Both backends satisfy the same
// repository ports so the rest of the process never knows which one runs.
func initStorage(cfg *config.Config) (*storageSet, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		pg, err := db.ConnectPostgres(context.Background(), cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		linkRepo, err := postgresStorage.NewLinksRepository(pg.Pool)
		if err != nil {
			pg.Close()
			return nil, err
		}
		visitRepo, err := postgresStorage.NewVisitsRepository(pg.Pool)
		if err != nil {
			pg.Close()
			return nil, err
		}
		return &storageSet{
			linkRepo:  linkRepo,
			visitRepo: visitRepo,
			close:     pg.Close,
		}, nil

	default:
		conn, err := db.ConnectMongo(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			return nil, err
		}
		linkRepo, err := mongoStorage.NewLinksRepository(conn)
		if err != nil {
			_ = conn.Disconnect()
			return nil, err
		}
		visitRepo, err := mongoStorage.NewVisitsRepository(conn)
		if err != nil {
			_ = conn.Disconnect()
			return nil, err
		}
		return &storageSet{
			linkRepo:  linkRepo,
			visitRepo: visitRepo,
			close:     func() { _ = conn.Disconnect() },
		}, nil
	}
}
