// Package database - Handles all interaction with ArangoDB
package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = InitLogger() // setup the logger

// DBConnection is the structure that defined the database engine and collections
type DBConnection struct {
	Collections map[string]arangodb.Collection
	Database    arangodb.Database
}

// Define a struct to hold the index definition
type indexConfig struct {
	Collection string
	IdxName    string
	IdxFields  []string
}

// Collection names
const (
	RunCollection      = "run"
	CoverageCollection = "coverage"
	MetadataCollection = "metadata"
)

const databaseName = "nlstats"

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key) // get the env var
	if !ex {                     // not found return default
		return defVal
	}
	return val // return value for env var
}

// InitLogger sets up the Zap Logger to log to the console in a human readable format
func InitLogger() *zap.Logger {
	return NewLogger(false)
}

// NewLogger builds the console logger used across the application. Debug
// enables debug level output, e.g. one line per API request.
func NewLogger(debug bool) *zap.Logger {
	prodConfig := zap.NewProductionConfig()
	prodConfig.Encoding = "console"
	prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	if debug {
		prodConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := prodConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// SetLogger replaces the package logger, e.g. with the CLI's configured one.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

func dbConnectionConfig(endpoint connection.Endpoint, dbuser string, dbpass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(dbuser, dbpass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: GetEnvDefault("ARANGO_INSECURE", "false") == "true", // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Enabled reports whether an ArangoDB endpoint has been configured.
func Enabled() bool {
	_, hasURL := os.LookupEnv("ARANGO_URL")
	_, hasHost := os.LookupEnv("ARANGO_HOST")
	return hasURL || hasHost
}

// InitializeDatabase connects to the db engine, creating the database, the
// collections and their indexes when missing. Connection attempts are retried
// with exponential backoff for up to maxWait.
func InitializeDatabase(ctx context.Context, maxWait time.Duration) (DBConnection, error) {
	const initialInterval = 2 * time.Second
	const maxInterval = 30 * time.Second

	dbhost := GetEnvDefault("ARANGO_HOST", "localhost")
	dbport := GetEnvDefault("ARANGO_PORT", "8529")
	dbuser := GetEnvDefault("ARANGO_USER", "root")
	dbpass := GetEnvDefault("ARANGO_PASS", "")
	dburl := GetEnvDefault("ARANGO_URL", "http://"+dbhost+":"+dbport)

	var client arangodb.Client

	//
	// Database connection with backoff retry
	//

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = maxWait

	err := backoff.RetryNotify(func() error {
		endpoint := connection.NewRoundRobinEndpoints([]string{dburl})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, dbuser, dbpass))

		client = arangodb.NewClient(conn)

		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}

		logger.Sugar().Infof("Database has version '%s' and license '%s'", versionInfo.Version, versionInfo.License)
		return nil

	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("Retrying connection to ArangoDB", zap.String("url", dburl), zap.Duration("wait", wait), zap.Error(err))
	})

	if err != nil {
		return DBConnection{}, fmt.Errorf("connect to ArangoDB at %s: %w", dburl, err)
	}

	//
	// Database creation
	//

	var db arangodb.Database
	exists := false
	dblist, _ := client.Databases(ctx)

	for _, dbinfo := range dblist {
		if dbinfo.Name() == databaseName {
			exists = true
			break
		}
	}

	if exists {
		var options arangodb.GetDatabaseOptions
		if db, err = client.GetDatabase(ctx, databaseName, &options); err != nil {
			return DBConnection{}, fmt.Errorf("get database %s: %w", databaseName, err)
		}
	} else {
		if db, err = client.CreateDatabase(ctx, databaseName, nil); err != nil {
			return DBConnection{}, fmt.Errorf("create database %s: %w", databaseName, err)
		}
	}

	//
	// Collection creation for document storage
	//

	collections := make(map[string]arangodb.Collection)
	collectionNames := []string{RunCollection, CoverageCollection, MetadataCollection}

	for _, collectionName := range collectionNames {
		var col arangodb.Collection

		exists, _ = db.CollectionExists(ctx, collectionName)
		if exists {
			var options arangodb.GetCollectionOptions
			if col, err = db.GetCollection(ctx, collectionName, &options); err != nil {
				return DBConnection{}, fmt.Errorf("use collection %s: %w", collectionName, err)
			}
		} else {
			if col, err = db.CreateCollection(ctx, collectionName, nil); err != nil {
				return DBConnection{}, fmt.Errorf("create collection %s: %w", collectionName, err)
			}
		}

		collections[collectionName] = col
	}

	//
	// Index creation
	//

	idxList := []indexConfig{
		{Collection: RunCollection, IdxName: "run_started_ns", IdxFields: []string{"started_ns"}},
		{Collection: CoverageCollection, IdxName: "coverage_run_id", IdxFields: []string{"run_id"}},
		{Collection: CoverageCollection, IdxName: "coverage_run_institution", IdxFields: []string{"run_id", "institution_id"}},
		{Collection: CoverageCollection, IdxName: "coverage_run_anomaly", IdxFields: []string{"run_id", "anomaly"}},
		{Collection: CoverageCollection, IdxName: "coverage_organization", IdxFields: []string{"organization_id"}},
		{Collection: CoverageCollection, IdxName: "coverage_datasource", IdxFields: []string{"datasource_id"}},
	}

	if err := ensureIndexes(ctx, collections, idxList); err != nil {
		return DBConnection{}, err
	}

	logger.Sugar().Infof("Database initialization complete: %s", databaseName)

	return DBConnection{
		Database:    db,
		Collections: collections,
	}, nil
}

func ensureIndexes(ctx context.Context, collections map[string]arangodb.Collection, idxList []indexConfig) error {
	False := false

	for _, idx := range idxList {
		col := collections[idx.Collection]
		found := false

		if indexes, err := col.Indexes(ctx); err == nil {
			for _, index := range indexes {
				if idx.IdxName == index.Name {
					found = true
					break
				}
			}
		}

		if found {
			continue
		}

		indexOptions := arangodb.CreatePersistentIndexOptions{
			Unique: &False,
			Sparse: &False,
			Name:   idx.IdxName,
		}

		if _, _, err := col.EnsurePersistentIndex(ctx, idx.IdxFields, &indexOptions); err != nil {
			return fmt.Errorf("create index %s on %s: %w", idx.IdxName, idx.Collection, err)
		}
		logger.Sugar().Infof("Created index: %s on %s%v", idx.IdxName, idx.Collection, idx.IdxFields)
	}

	return nil
}
