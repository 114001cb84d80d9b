// Package mongo hosts the MongoDB client used by the state store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

const (
	defaultCollection = "agent_state"
	defaultOpTimeout  = 5 * time.Second
	stateClientName   = "state-mongo"
)

// Client exposes Mongo-backed operations for session state envelopes. The
// envelope bytes are stored verbatim; the state codec owns versioning and
// field preservation.
type Client interface {
	health.Pinger

	// LoadDocument returns the envelope bytes for the session, or
	// state.ErrNotFound.
	LoadDocument(ctx context.Context, sessionID string) ([]byte, error)

	// SaveDocument upserts the envelope bytes for the session.
	SaveDocument(ctx context.Context, sessionID string, doc []byte) error
}

// Options configures the Mongo state client.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

type client struct {
	mongo   *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

type document struct {
	SessionID string    `bson:"session_id"`
	Document  []byte    `bson:"document"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// New returns a Client backed by MongoDB. The session_id unique index is
// created eagerly so constructor failures surface before first use.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	coll := opts.Collection
	if coll == "" {
		coll = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	c := &client{
		mongo:   opts.Client,
		coll:    opts.Client.Database(opts.Database).Collection(coll),
		timeout: timeout,
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *client) Name() string {
	return stateClientName
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) LoadDocument(ctx context.Context, sessionID string) ([]byte, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc document
	err := c.coll.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", state.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load state document: %w", err)
	}
	return doc.Document, nil
}

func (c *client) SaveDocument(ctx context.Context, sessionID string, doc []byte) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": sessionID}
	update := bson.M{"$set": bson.M{
		"document":   doc,
		"updated_at": time.Now().UTC(),
	}}
	_, err := c.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save state document: %w", err)
	}
	return nil
}

func (c *client) ensureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create state indexes: %w", err)
	}
	return nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
