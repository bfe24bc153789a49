package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"poll-service/internal/poll"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "polls"

type optionDocument struct {
	ID      int    `bson:"id"`
	Text    string `bson:"text"`
	Correct *bool  `bson:"correct"`
	Votes   int    `bson:"votes"`
}

type pollDocument struct {
	ID              string           `bson:"_id"`
	Question        string           `bson:"question"`
	Options         []optionDocument `bson:"options"`
	Timer           int              `bson:"timer"`
	TeacherUsername string           `bson:"teacherUsername"`
	CreatedAt       time.Time        `bson:"createdAt"`
	Closed          bool             `bson:"closed"`
}

// PollRepository stores each poll as one document with its options embedded.
type PollRepository struct {
	coll *mongo.Collection
}

func NewPollRepository(db *mongo.Database) *PollRepository {
	return &PollRepository{coll: db.Collection(collectionName)}
}

// EnsureIndexes creates the owner lookup index.
func (r *PollRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "teacherUsername", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create poll indexes: %w", err)
	}
	return nil
}

func (r *PollRepository) Load(ctx context.Context) ([]poll.Poll, error) {
	return r.find(ctx, bson.M{})
}

func (r *PollRepository) Append(ctx context.Context, p *poll.Poll) error {
	_, err := r.coll.InsertOne(ctx, fromDomain(p))
	return err
}

func (r *PollRepository) UpdatePoll(ctx context.Context, id string, mutate poll.Mutator) (*poll.Poll, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(p); err != nil {
		return nil, err
	}

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": id}, fromDomain(p))
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, poll.ErrPollNotFound
	}
	return p, nil
}

func (r *PollRepository) Get(ctx context.Context, id string) (*poll.Poll, error) {
	var doc pollDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, poll.ErrPollNotFound
		}
		return nil, err
	}
	return toDomain(doc), nil
}

func (r *PollRepository) ListByOwner(ctx context.Context, owner string) ([]poll.Poll, error) {
	return r.find(ctx, bson.M{"teacherUsername": owner})
}

func (r *PollRepository) find(ctx context.Context, filter bson.M) ([]poll.Poll, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []pollDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]poll.Poll, 0, len(docs))
	for _, doc := range docs {
		out = append(out, *toDomain(doc))
	}
	return out, nil
}

func fromDomain(p *poll.Poll) pollDocument {
	doc := pollDocument{
		ID:              p.ID,
		Question:        p.Question,
		Timer:           p.Timer,
		TeacherUsername: p.Owner,
		CreatedAt:       p.CreatedAt,
		Closed:          p.Closed,
		Options:         make([]optionDocument, len(p.Options)),
	}
	for i, opt := range p.Options {
		doc.Options[i] = optionDocument(opt)
	}
	return doc
}

func toDomain(doc pollDocument) *poll.Poll {
	p := &poll.Poll{
		ID:        doc.ID,
		Question:  doc.Question,
		Timer:     doc.Timer,
		Owner:     doc.TeacherUsername,
		CreatedAt: doc.CreatedAt.UTC(),
		Closed:    doc.Closed,
		Options:   make([]poll.Option, len(doc.Options)),
	}
	for i, opt := range doc.Options {
		p.Options[i] = poll.Option(opt)
	}
	return p
}
