package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zerorich/rating-bot/internal/domain"
)

const (
	skProfile       = "PROFILE"
	skLink          = "LINK"
	skPrefixMessage = "MSG#"
	skPrefixRating  = "RATE#"

	condNew = "attribute_not_exists(PK) AND attribute_not_exists(SK)"

	// Fixed width so lexical order equals time order.
	sortableTime = "2006-01-02T15:04:05.000000000Z"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores users, link tokens and received records in one DynamoDB table.
//
//	USER#<userId>       PROFILE               user profile
//	LINK#<token>        LINK                  reverse lookup, carries the profile
//	INBOX#<recipient>   MSG#<sentAt>#<id>     anonymous message
//	INBOX#<recipient>   RATE#<sentAt>#<id>    rating
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func userPK(userID int64) string {
	return "USER#" + strconv.FormatInt(userID, 10)
}

func linkPK(token string) string {
	return "LINK#" + token
}

func inboxPK(recipientUserID int64) string {
	return "INBOX#" + strconv.FormatInt(recipientUserID, 10)
}

// recordSK sorts by time; the id keeps same-instant records distinct.
func recordSK(prefix string, ts time.Time, id string) string {
	return prefix + ts.UTC().Format(sortableTime) + "#" + id
}

// FindUserByID returns the profile of a registered user.
func (c *Client) FindUserByID(ctx context.Context, userID int64) (domain.User, error) {
	u, err := c.getUser(ctx, userPK(userID), skProfile)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: FindUserByID: %w", err)
	}
	return u, nil
}

// FindUserByLinkToken resolves a link token to its owner.
func (c *Client) FindUserByLinkToken(ctx context.Context, token string) (domain.User, error) {
	u, err := c.getUser(ctx, linkPK(token), skLink)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: FindUserByLinkToken: %w", err)
	}
	return u, nil
}

func (c *Client) getUser(ctx context.Context, pk, sk string) (domain.User, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	u, err := itemToUser(out.Item)
	if err != nil {
		return domain.User{}, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}

// InsertUser writes the profile and its link item in one transaction so
// neither the user id nor the token can ever be claimed twice.
func (c *Client) InsertUser(ctx context.Context, u domain.User) error {
	if u.LinkToken == "" {
		return errors.New("repository: InsertUser: link token is required")
	}
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                userItem(userPK(u.UserID), skProfile, u),
					ConditionExpression: aws.String(condNew),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                userItem(linkPK(u.LinkToken), skLink, u),
					ConditionExpression: aws.String(condNew),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: InsertUser: %w", mapWriteError(err))
	}
	return nil
}

// InsertMessage persists an anonymous message.
func (c *Client) InsertMessage(ctx context.Context, m domain.Message) error {
	if m.ID == "" {
		return errors.New("repository: InsertMessage: id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                messageItem(m),
		ConditionExpression: aws.String(condNew),
	})
	if err != nil {
		return fmt.Errorf("repository: InsertMessage: %w", mapWriteError(err))
	}
	return nil
}

// InsertRating persists a rating.
func (c *Client) InsertRating(ctx context.Context, r domain.Rating) error {
	if r.ID == "" {
		return errors.New("repository: InsertRating: id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                ratingItem(r),
		ConditionExpression: aws.String(condNew),
	})
	if err != nil {
		return fmt.Errorf("repository: InsertRating: %w", mapWriteError(err))
	}
	return nil
}

// ListMessages returns the newest messages received by a user.
func (c *Client) ListMessages(ctx context.Context, recipientUserID int64, limit int) ([]domain.Message, error) {
	items, err := c.queryInbox(ctx, recipientUserID, skPrefixMessage, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: ListMessages query: %w", err)
	}
	msgs := make([]domain.Message, 0, len(items))
	for _, item := range items {
		m, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListMessages unmarshal: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// ListRatings returns the newest ratings received by a user.
func (c *Client) ListRatings(ctx context.Context, recipientUserID int64, limit int) ([]domain.Rating, error) {
	items, err := c.queryInbox(ctx, recipientUserID, skPrefixRating, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: ListRatings query: %w", err)
	}
	ratings := make([]domain.Rating, 0, len(items))
	for _, item := range items {
		r, err := itemToRating(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListRatings unmarshal: %w", err)
		}
		ratings = append(ratings, r)
	}
	return ratings, nil
}

func (c *Client) queryInbox(ctx context.Context, recipientUserID int64, prefix string, limit int) ([]map[string]types.AttributeValue, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: inboxPK(recipientUserID)},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
		// Newest first; the sort key starts with the timestamp.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return out.Items, nil
}

// mapWriteError turns failed write conditions into domain.ErrAlreadyExists.
func mapWriteError(err error) error {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
	}
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
			}
		}
	}
	return err
}

func userItem(pk, sk string, u domain.User) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: pk},
		"SK":          &types.AttributeValueMemberS{Value: sk},
		"userId":      &types.AttributeValueMemberN{Value: strconv.FormatInt(u.UserID, 10)},
		"displayName": &types.AttributeValueMemberS{Value: u.DisplayName},
		"linkToken":   &types.AttributeValueMemberS{Value: u.LinkToken},
		"createdAt":   &types.AttributeValueMemberS{Value: u.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func messageItem(m domain.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: inboxPK(m.RecipientUserID)},
		"SK":              &types.AttributeValueMemberS{Value: recordSK(skPrefixMessage, m.SentAt, m.ID)},
		"id":              &types.AttributeValueMemberS{Value: m.ID},
		"recipientUserId": &types.AttributeValueMemberN{Value: strconv.FormatInt(m.RecipientUserID, 10)},
		"senderUserId":    &types.AttributeValueMemberN{Value: strconv.FormatInt(m.SenderUserID, 10)},
		"text":            &types.AttributeValueMemberS{Value: m.Text},
		"sentAt":          &types.AttributeValueMemberS{Value: m.SentAt.UTC().Format(time.RFC3339Nano)},
		"isRead":          &types.AttributeValueMemberBOOL{Value: m.IsRead},
	}
}

func ratingItem(r domain.Rating) map[string]types.AttributeValue {
	scores := make(map[string]types.AttributeValue, len(domain.Attributes))
	for _, a := range domain.Attributes {
		scores[string(a)] = &types.AttributeValueMemberN{Value: strconv.Itoa(r.Scores.Get(a))}
	}
	var message types.AttributeValue = &types.AttributeValueMemberNULL{Value: true}
	if r.Message != nil {
		message = &types.AttributeValueMemberS{Value: *r.Message}
	}
	return map[string]types.AttributeValue{
		"PK":                &types.AttributeValueMemberS{Value: inboxPK(r.RecipientUserID)},
		"SK":                &types.AttributeValueMemberS{Value: recordSK(skPrefixRating, r.SentAt, r.ID)},
		"id":                &types.AttributeValueMemberS{Value: r.ID},
		"senderUserId":      &types.AttributeValueMemberN{Value: strconv.FormatInt(r.SenderUserID, 10)},
		"senderDisplayName": &types.AttributeValueMemberS{Value: r.SenderDisplayName},
		"recipientUserId":   &types.AttributeValueMemberN{Value: strconv.FormatInt(r.RecipientUserID, 10)},
		"anonymous":         &types.AttributeValueMemberBOOL{Value: r.Anonymous},
		"ratings":           &types.AttributeValueMemberM{Value: scores},
		"wantsRelationship": &types.AttributeValueMemberBOOL{Value: r.WantsRelationship},
		"knowsPersonally":   &types.AttributeValueMemberBOOL{Value: r.KnowsPersonally},
		"message":           message,
		"sentAt":            &types.AttributeValueMemberS{Value: r.SentAt.UTC().Format(time.RFC3339Nano)},
	}
}

func itemToUser(item map[string]types.AttributeValue) (domain.User, error) {
	id, err := int64Attr(item, "userId")
	if err != nil {
		return domain.User{}, err
	}
	token, err := strAttr(item, "linkToken")
	if err != nil {
		return domain.User{}, err
	}
	name, _ := strAttr(item, "displayName") // allow empty
	created, _ := timeAttr(item, "createdAt")
	return domain.User{UserID: id, DisplayName: name, LinkToken: token, CreatedAt: created}, nil
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Message{}, err
	}
	recipient, err := int64Attr(item, "recipientUserId")
	if err != nil {
		return domain.Message{}, err
	}
	sender, err := int64Attr(item, "senderUserId")
	if err != nil {
		return domain.Message{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Message{}, err
	}
	sentAt, err := timeAttr(item, "sentAt")
	if err != nil {
		return domain.Message{}, err
	}
	isRead, _ := boolAttr(item, "isRead")
	return domain.Message{
		ID:              id,
		RecipientUserID: recipient,
		SenderUserID:    sender,
		Text:            text,
		SentAt:          sentAt,
		IsRead:          isRead,
	}, nil
}

func itemToRating(item map[string]types.AttributeValue) (domain.Rating, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Rating{}, err
	}
	sender, err := int64Attr(item, "senderUserId")
	if err != nil {
		return domain.Rating{}, err
	}
	recipient, err := int64Attr(item, "recipientUserId")
	if err != nil {
		return domain.Rating{}, err
	}
	anonymous, err := boolAttr(item, "anonymous")
	if err != nil {
		return domain.Rating{}, err
	}
	scores, err := scoresAttr(item, "ratings")
	if err != nil {
		return domain.Rating{}, err
	}
	wants, err := boolAttr(item, "wantsRelationship")
	if err != nil {
		return domain.Rating{}, err
	}
	knows, err := boolAttr(item, "knowsPersonally")
	if err != nil {
		return domain.Rating{}, err
	}
	sentAt, err := timeAttr(item, "sentAt")
	if err != nil {
		return domain.Rating{}, err
	}
	name, _ := strAttr(item, "senderDisplayName") // empty for anonymous ratings

	r := domain.Rating{
		ID:                id,
		SenderUserID:      sender,
		SenderDisplayName: name,
		RecipientUserID:   recipient,
		Anonymous:         anonymous,
		Scores:            scores,
		WantsRelationship: wants,
		KnowsPersonally:   knows,
		SentAt:            sentAt,
	}
	if msg, ok := item["message"].(*types.AttributeValueMemberS); ok {
		text := msg.Value
		r.Message = &text
	}
	return r, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, fmt.Errorf("repository: missing attribute %q", key)
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("repository: attribute %q is not a boolean", key)
	}
	return b.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}

func scoresAttr(item map[string]types.AttributeValue, key string) (domain.Scores, error) {
	v, ok := item[key]
	if !ok {
		return domain.Scores{}, fmt.Errorf("repository: missing attribute %q", key)
	}
	m, ok := v.(*types.AttributeValueMemberM)
	if !ok {
		return domain.Scores{}, fmt.Errorf("repository: attribute %q is not a map", key)
	}
	values := make(map[domain.Attribute]int, len(domain.Attributes))
	for _, a := range domain.Attributes {
		n, err := int64Attr(m.Value, string(a))
		if err != nil {
			return domain.Scores{}, err
		}
		values[a] = int(n)
	}
	st := domain.ConversationState{Ratings: values}
	scores, _ := st.Scores()
	return scores, nil
}
