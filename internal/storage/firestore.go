package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/promo-reply-bot/internal/models"
)

const (
	searchResultsCollection = "search_results"
	sentRepliesCollection   = "sent_replies"
	stateCollection         = "bot_state"

	pendingDoc      = "pending_replies"
	keywordStateDoc = "keyword_state"
)

// pendingBatch stores the whole pending batch in one document so that
// replacing it is a single write and order is preserved.
type pendingBatch struct {
	Replies []models.PreparedReply `firestore:"replies"`
}

// FirestoreStore keeps the queue in Firestore. Search results are keyed by post
// ID, so re-fetching a post refreshes its metrics instead of duplicating it.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (c *FirestoreStore) Close() error {
	return c.client.Close()
}

func (c *FirestoreStore) LoadSearchResults(ctx context.Context) ([]models.CandidatePost, error) {
	iter := c.client.Collection(searchResultsCollection).OrderBy("timestamp", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var posts []models.CandidatePost
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate search results: %w", err)
		}
		var p models.CandidatePost
		if err := doc.DataTo(&p); err != nil {
			slog.Warn("Skipping unreadable search result", "id", doc.Ref.ID, "error", err)
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func (c *FirestoreStore) AppendSearchResults(ctx context.Context, posts []models.CandidatePost) (int, error) {
	collectionRef := c.client.Collection(searchResultsCollection)
	bulkWriter := c.client.BulkWriter(ctx)

	jobs := make([]*firestore.BulkWriterJob, 0, len(posts))
	for _, p := range posts {
		job, err := bulkWriter.Set(collectionRef.Doc(p.PostID), p)
		if err != nil {
			bulkWriter.End()
			return 0, fmt.Errorf("failed to queue search result %s: %w", p.PostID, err)
		}
		jobs = append(jobs, job)
	}
	bulkWriter.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return 0, fmt.Errorf("failed to save search result %s: %w", posts[i].PostID, err)
		}
	}
	return c.count(ctx, collectionRef)
}

// TrimSearchResults deletes the oldest search results (by fetch time) beyond maxResults.
func (c *FirestoreStore) TrimSearchResults(ctx context.Context, maxResults int) error {
	collectionRef := c.client.Collection(searchResultsCollection)

	current, err := c.count(ctx, collectionRef)
	if err != nil {
		return fmt.Errorf("failed to get search result count for trimming: %w", err)
	}
	if current <= maxResults {
		return nil
	}

	numToDelete := current - maxResults
	slog.Info("Trimming search results", "current", current, "max", maxResults, "deleting", numToDelete)

	iter := collectionRef.
		OrderBy("timestamp", firestore.Asc).
		Limit(numToDelete).
		Documents(ctx)
	defer iter.Stop()

	deletedCount := 0
	bulkWriter := c.client.BulkWriter(ctx)
	defer bulkWriter.End()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate search results for trimming: %w", err)
		}

		if _, err := bulkWriter.Delete(doc.Ref); err != nil {
			slog.Warn("Error queueing delete", "id", doc.Ref.ID, "error", err)
			continue
		}
		deletedCount++
	}

	if deletedCount > 0 {
		bulkWriter.Flush()
		slog.Info("Trimmed search results", "deleted", deletedCount)
	}
	return nil
}

func (c *FirestoreStore) LoadPending(ctx context.Context) ([]models.PreparedReply, error) {
	doc, err := c.client.Collection(stateCollection).Doc(pendingDoc).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending replies: %w", err)
	}

	var batch pendingBatch
	if err := doc.DataTo(&batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending replies: %w", err)
	}
	for i := range batch.Replies {
		batch.Replies[i].ID = models.PreparedReplyID(batch.Replies[i].Target.PostID)
	}
	return batch.Replies, nil
}

// ReplacePending overwrites the pending batch. An empty batch is stored as an empty list.
func (c *FirestoreStore) ReplacePending(ctx context.Context, replies []models.PreparedReply) error {
	if replies == nil {
		replies = []models.PreparedReply{}
	}
	_, err := c.client.Collection(stateCollection).Doc(pendingDoc).Set(ctx, pendingBatch{Replies: replies})
	if err != nil {
		return fmt.Errorf("failed to save pending replies: %w", err)
	}
	return nil
}

func (c *FirestoreStore) LoadSentLog(ctx context.Context) ([]models.SentRecord, error) {
	iter := c.client.Collection(sentRepliesCollection).OrderBy("sentAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var records []models.SentRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate sent replies: %w", err)
		}
		var r models.SentRecord
		if err := doc.DataTo(&r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sent reply %s: %w", doc.Ref.ID, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// AppendSent creates one document per record. Existing records are never overwritten.
// An error may follow a partial write; writing the same batch again skips the records that landed.
func (c *FirestoreStore) AppendSent(ctx context.Context, records []models.SentRecord) error {
	var errs []error
	for _, r := range records {
		err := c.createSent(ctx, r)
		if errors.Is(err, models.ErrAlreadySent) {
			slog.Warn("Sent record already exists, keeping the original", "post_id", r.PostID)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *FirestoreStore) createSent(ctx context.Context, r models.SentRecord) error {
	// Create fails if the document already exists.
	_, err := c.client.Collection(sentRepliesCollection).Doc(r.PostID).Create(ctx, r)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return models.ErrAlreadySent
		}
		return fmt.Errorf("failed to create sent record %s: %w", r.PostID, err)
	}
	return nil
}

func (c *FirestoreStore) LoadKeywordState(ctx context.Context) (*models.KeywordState, error) {
	doc, err := c.client.Collection(stateCollection).Doc(keywordStateDoc).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get keyword state: %w", err)
	}
	if !doc.Exists() {
		return nil, nil
	}

	var state models.KeywordState
	if err := doc.DataTo(&state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keyword state: %w", err)
	}
	return &state, nil
}

func (c *FirestoreStore) SaveKeywordState(ctx context.Context, state models.KeywordState) error {
	if _, err := c.client.Collection(stateCollection).Doc(keywordStateDoc).Set(ctx, state); err != nil {
		return fmt.Errorf("failed to save keyword state: %w", err)
	}
	return nil
}

func (c *FirestoreStore) count(ctx context.Context, collectionRef *firestore.CollectionRef) (int, error) {
	countSnapshot, err := collectionRef.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collectionRef.ID, err)
	}
	countValue, ok := countSnapshot["all"]
	if !ok {
		return 0, fmt.Errorf("count aggregation result was invalid: 'all' key missing")
	}
	n, err := aggregationCount(countValue)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// aggregationCount extracts the integer from a count aggregation result.
func aggregationCount(value interface{}) (int64, error) {
	switch val := value.(type) {
	case int64:
		return val, nil
	case *firestorepb.Value:
		return val.GetIntegerValue(), nil
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", value)
	}
}
