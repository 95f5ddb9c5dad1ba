package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/azzy787/task-board-mvp/domain"
)

// Collection names.
const (
	CollectionTasks = "tasks"
	CollectionMeta  = "boards"
)

const boardField = "board"

// Mongo stores a board in MongoDB. Task documents carry the board id so
// several boards can share a collection.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	board  string
	notify Notifier
	now    func() time.Time

	retry time.Duration
}

// NewMongo connects and pings the server. notify may be nil; change streams
// are available through Changes regardless.
func NewMongo(ctx context.Context, uri, dbName, board string, notify Notifier) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.WithField("database", dbName).Info("connected to MongoDB")
	return &Mongo{
		client: client,
		db:     client.Database(dbName),
		board:  board,
		notify: notify,
		now:    time.Now,
		retry:  2 * time.Second,
	}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the board queries rely on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.db.Collection(CollectionTasks).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: boardField, Value: 1}, {Key: domain.FieldOrder, Value: 1}}},
		{Keys: bson.D{{Key: boardField, Value: 1}, {Key: domain.FieldStatus, Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create tasks indexes: %w", err)
	}
	return nil
}

func (m *Mongo) tasks() *mongo.Collection { return m.db.Collection(CollectionTasks) }

func (m *Mongo) ListTasks(ctx context.Context) ([]domain.Record, error) {
	cursor, err := m.tasks().Find(ctx, bson.M{boardField: m.board},
		options.Find().SetSort(bson.D{{Key: domain.FieldOrder, Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	recs := []domain.Record{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		recs = append(recs, recordFromDoc(doc))
	}
	return recs, cursor.Err()
}

func (m *Mongo) CreateTask(ctx context.Context, t domain.Task) (domain.Record, error) {
	t.ID = uuid.NewString()
	rec := domain.RecordFromTask(t, m.now().UTC())
	doc := bson.M{"_id": rec.ID, boardField: m.board}
	for k, v := range rec.Fields {
		doc[k] = v
	}
	if _, err := m.tasks().InsertOne(ctx, doc); err != nil {
		return domain.Record{}, err
	}
	m.publish(ctx, domain.ChangeCreate, rec.ID)
	return rec, nil
}

func (m *Mongo) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) error {
	set := bson.M{}
	unset := bson.M{}
	for k, v := range domain.PatchFields(p, m.now().UTC()) {
		if v == nil {
			unset[k] = ""
			continue
		}
		set[k] = v
	}
	if p.ClearDueDate {
		unset[domain.FieldLegacyDue] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := m.tasks().UpdateOne(ctx, bson.M{"_id": id, boardField: m.board}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	m.publish(ctx, domain.ChangeUpdate, id)
	return nil
}

func (m *Mongo) DeleteTasks(ctx context.Context, ids []string) error {
	_, err := m.tasks().DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}, boardField: m.board})
	if err != nil {
		return err
	}
	m.publish(ctx, domain.ChangeDelete, ids...)
	return nil
}

func (m *Mongo) GetMeta(ctx context.Context) (domain.BoardMeta, error) {
	var doc struct {
		Title string `bson:"title"`
	}
	err := m.db.Collection(CollectionMeta).FindOne(ctx, bson.M{"_id": m.board}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return domain.BoardMeta{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BoardMeta{}, err
	}
	return domain.BoardMeta{Title: doc.Title}, nil
}

func (m *Mongo) PutMeta(ctx context.Context, meta domain.BoardMeta) error {
	_, err := m.db.Collection(CollectionMeta).UpdateOne(ctx,
		bson.M{"_id": m.board},
		bson.M{"$set": bson.M{"title": meta.Title, domain.FieldUpdatedAt: m.now().UTC()}},
		options.Update().SetUpsert(true))
	if err != nil {
		return err
	}
	m.publish(ctx, domain.ChangeMeta)
	return nil
}

// Changes watches the task and metadata collections and emits a notice per
// change event. The stream is reopened after errors until ctx is done.
func (m *Mongo) Changes(ctx context.Context) (<-chan domain.Change, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: bson.A{CollectionTasks, CollectionMeta}}}}}}},
	}
	stream, err := m.db.Watch(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.Change, 16)
	go func() {
		defer close(out)
		for {
			m.drain(ctx, stream, out)
			_ = stream.Close(context.Background())
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(m.retry):
				}
				next, err := m.db.Watch(ctx, pipeline)
				if err == nil {
					stream = next
					break
				}
				log.WithError(err).Warn("change stream reopen failed")
			}
		}
	}()
	return out, nil
}

func (m *Mongo) drain(ctx context.Context, stream *mongo.ChangeStream, out chan<- domain.Change) {
	for stream.Next(ctx) {
		var ev struct {
			OperationType string `bson:"operationType"`
			DocumentKey   struct {
				ID any `bson:"_id"`
			} `bson:"documentKey"`
			NS struct {
				Coll string `bson:"coll"`
			} `bson:"ns"`
		}
		if err := stream.Decode(&ev); err != nil {
			log.WithError(err).Warn("decode change event")
			continue
		}
		c := domain.Change{Board: m.board, Op: changeOp(ev.NS.Coll, ev.OperationType), At: m.now().UTC()}
		if id, ok := ev.DocumentKey.ID.(string); ok && ev.NS.Coll == CollectionTasks {
			c.IDs = []string{id}
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		log.WithError(err).Warn("change stream interrupted")
	}
}

func changeOp(coll, op string) domain.ChangeOp {
	if coll == CollectionMeta {
		return domain.ChangeMeta
	}
	switch op {
	case "insert":
		return domain.ChangeCreate
	case "delete":
		return domain.ChangeDelete
	}
	return domain.ChangeUpdate
}

func (m *Mongo) publish(ctx context.Context, op domain.ChangeOp, ids ...string) {
	if m.notify == nil {
		return
	}
	c := domain.Change{Board: m.board, Op: op, IDs: ids, At: m.now().UTC()}
	if err := m.notify.Notify(ctx, c); err != nil {
		log.WithFields(log.Fields{"board": m.board, "op": op}).WithError(err).Warn("change notification failed")
	}
}

// recordFromDoc converts BSON values to the native types records use.
func recordFromDoc(doc bson.M) domain.Record {
	rec := domain.Record{Fields: make(map[string]any, len(doc))}
	for k, v := range doc {
		switch k {
		case "_id":
			rec.ID = fmt.Sprint(v)
			continue
		case boardField:
			continue
		}
		switch x := v.(type) {
		case primitive.DateTime:
			rec.Fields[k] = x.Time().UTC()
		case primitive.Timestamp:
			rec.Fields[k] = time.Unix(int64(x.T), 0).UTC()
		default:
			rec.Fields[k] = v
		}
	}
	return rec
}
