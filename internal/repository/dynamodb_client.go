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
	"github.com/google/uuid"

	"gemini-chat/internal/domain"
)

const (
	pkPrefixDay      = "DAY#"
	skPrefixExchange = "EXCH#"
	dayLayout        = "2006-01-02"
	ttlDuration      = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client writes chat exchanges to a DynamoDB table, partitioned by UTC day.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// dayPK returns the partition key holding every exchange of one UTC day.
func dayPK(ts time.Time) string {
	return pkPrefixDay + ts.UTC().Format(dayLayout)
}

// exchangeSK sorts exchanges chronologically within a day.
func exchangeSK(ts time.Time, id string) string {
	return skPrefixExchange + ts.UTC().Format(time.RFC3339Nano) + "#" + id
}

// SaveExchange persists one exchange. Keys, id and TTL are filled in when empty.
func (c *Client) SaveExchange(ctx context.Context, ex domain.Exchange) error {
	now := c.now()
	if ex.ExchangeID == "" {
		ex.ExchangeID = newUUID()
	}
	if ex.PK == "" {
		ex.PK = dayPK(now)
	}
	if ex.SK == "" {
		ex.SK = exchangeSK(now, ex.ExchangeID)
	}
	if ex.TTL == 0 {
		ex.TTL = now.Add(ttlDuration).Unix()
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                exchangeItem(ex),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveExchange: %w", err)
	}
	return nil
}

// ListExchanges returns up to limit exchanges recorded on day, newest first.
// A limit of zero or less returns every exchange, following Query pages.
func (c *Client) ListExchanges(ctx context.Context, day time.Time, limit int) ([]domain.Exchange, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: dayPK(day)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixExchange},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	var exchanges []domain.Exchange
	pages := dynamodb.NewQueryPaginator(c.api, in)
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: ListExchanges query: %w", err)
		}
		for _, item := range out.Items {
			ex, err := itemToExchange(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListExchanges unmarshal: %w", err)
			}
			exchanges = append(exchanges, ex)
			if limit > 0 && len(exchanges) == limit {
				return exchanges, nil
			}
		}
	}
	if exchanges == nil {
		exchanges = []domain.Exchange{}
	}
	return exchanges, nil
}

func exchangeItem(ex domain.Exchange) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: ex.PK},
		"SK":         &types.AttributeValueMemberS{Value: ex.SK},
		"exchangeId": &types.AttributeValueMemberS{Value: ex.ExchangeID},
		"message":    &types.AttributeValueMemberS{Value: ex.Message},
		"reply":      &types.AttributeValueMemberS{Value: ex.Reply},
		"model":      &types.AttributeValueMemberS{Value: ex.Model},
		"status":     &types.AttributeValueMemberS{Value: ex.Status},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(ex.TTL, 10)},
	}
	if len(ex.Attachments) > 0 {
		list := make([]types.AttributeValue, 0, len(ex.Attachments))
		for _, a := range ex.Attachments {
			list = append(list, &types.AttributeValueMemberS{Value: a})
		}
		item["attachments"] = &types.AttributeValueMemberL{Value: list}
	}
	return item
}

// itemToExchange converts a DynamoDB attribute map to an Exchange.
func itemToExchange(item map[string]types.AttributeValue) (domain.Exchange, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Exchange{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Exchange{}, err
	}
	id, err := strAttr(item, "exchangeId")
	if err != nil {
		return domain.Exchange{}, err
	}
	message, _ := strAttr(item, "message") // allow empty
	reply, _ := strAttr(item, "reply")
	model, _ := strAttr(item, "model")
	status, _ := strAttr(item, "status")
	ttl, _ := int64Attr(item, "ttl")

	var attachments []string
	if l, ok := item["attachments"].(*types.AttributeValueMemberL); ok {
		for _, v := range l.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				attachments = append(attachments, s.Value)
			}
		}
	}

	return domain.Exchange{
		PK:          pk,
		SK:          sk,
		ExchangeID:  id,
		Message:     message,
		Attachments: attachments,
		Reply:       reply,
		Model:       model,
		Status:      status,
		TTL:         ttl,
	}, nil
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

var newUUID = func() string {
	return uuid.NewString()
}
